// Package accessctl orchestrates the three authenticated operations over an
// identity (inspect, change passphrase, destroy) on top of the credential
// gate.
//
// Every operation demands full proof of passphrase possession. Inspect and
// destroy prove it through the gate's unlock; a passphrase change folds the
// unlock into the mutation itself, because the relock needs the unlocked key
// set anyway.
//
// The controller surfaces a deliberately narrow error taxonomy: ErrNotFound
// when the identity does not exist, ErrChallenge for every credential
// failure (identifier mismatch, wrong passphrase, relock error, all
// indistinguishable from outside), ValidationError for malformed input
// rejected before any credential work, interfaces.ErrStaleIdentity when a
// concurrent passphrase change won, and wrapped store faults for everything
// server-side. Cryptographic errors are converted here and never propagate
// raw.
package accessctl
