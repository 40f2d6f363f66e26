// Package stxbulk builds signed STX transfers that pay many recipients at
// once.
//
// A recipient set becomes either a single call to a send-many contract or,
// when explicitly allowed and there is exactly one recipient, a native
// token-transfer. Fan-out calls always carry one origin-scoped post-condition
// asserting the sender moves exactly the sum of all amounts, in Deny mode.
//
// The package never touches key material or the network itself. Signing,
// nonce lookup and fee estimation go through the Signer, NonceResolver and
// FeeEstimator interfaces, implemented by the stacks and network packages:
//   - Assembler.Build - Validates a Transfer and signs it
//   - Assembler.BuildBatch - Signs one fan-out per chunk with consecutive nonces
//   - SelectTransfer - Picks direct transfer or fan-out for a set
//   - BumpFee - Applies a percentage on top of an estimated fee
package stxbulk
