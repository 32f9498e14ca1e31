// Package quotes is the client for the upstream quote provider.
//
// The provider exposes a single batch endpoint returning the most recent
// bars for up to a few dozen symbols:
//
//	GET {base}/v1/bars/latest?symbols=EQNR.OL,DNB.OL&limit=2
//
// Bars are returned oldest first. Symbols the provider does not know are
// simply absent from the response.
package quotes
