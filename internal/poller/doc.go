// Package poller implements the quote poller.
//
// Each cycle the poller:
//   - Splits every category's tracked symbols into small sub-batches
//   - Waits on the provider rate limiter before each upstream request
//   - Writes each returned point to the cache and the history buffer
//   - Enqueues the point for the dispatcher, dropping it when the queue is full
//
// A failed sub-batch is logged and followed by a cooldown; the remaining
// sub-batches still run and the failed symbols keep their previous values.
package poller
