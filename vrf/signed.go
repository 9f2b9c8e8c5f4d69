// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vrf

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/zeebo/blake3"
)

const seedDomain = "jackpot vrf seed v1"

var errNilKey = errors.New("nil signing key")

// Proof is the public evidence for a signed fulfillment.
type Proof struct {
	Seed      common.Hash
	Signature []byte // compressed BLS12-381 G2 signature over Seed
}

// SignedProvider answers requests with words derived from a BLS signature
// over a per-request seed. A BLS signature is a function of the key and the
// message alone, so each request has exactly one valid set of words and
// anyone holding the public key can check it with Verify.
type SignedProvider struct {
	address common.Address
	key     *bls.SecretKey
	signer  *bls.PublicKey

	nextID    uint64
	pending   map[uint64]*pendingRequest
	fulfilled map[uint64]Proof

	log log.Logger

	mu sync.Mutex
}

var _ Provider = (*SignedProvider)(nil)

// NewSignedProvider creates a provider deployed at address signing with key
func NewSignedProvider(address common.Address, key *bls.SecretKey, logger log.Logger) *SignedProvider {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &SignedProvider{
		address:   address,
		key:       key,
		signer:    key.PublicKey(),
		nextID:    1,
		pending:   make(map[uint64]*pendingRequest),
		fulfilled: make(map[uint64]Proof),
		log:       logger,
	}
}

func (p *SignedProvider) Address() common.Address {
	return p.address
}

// Signer returns the public key fulfillments verify against.
func (p *SignedProvider) Signer() *bls.PublicKey {
	return p.signer
}

func (p *SignedProvider) RequestRandomWords(_ context.Context, req Request) (*uint256.Int, error) {
	if err := validateShape(req); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.pending[id] = &pendingRequest{req: req, seed: Seed(p.address, id, req)}
	return uint256.NewInt(id), nil
}

// Pending returns the ids of unanswered requests in ascending order.
func (p *SignedProvider) Pending() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]uint64, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Fulfill signs the seed of request id and delivers the derived words.
func (p *SignedProvider) Fulfill(ctx context.Context, id uint64) error {
	p.mu.Lock()
	req, ok := p.pending[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownVRFRequest, id)
	}
	delete(p.pending, id)
	p.mu.Unlock()

	proof, words, err := Prove(p.key, req.seed, req.req.NumWords)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.fulfilled[id] = proof
	p.mu.Unlock()

	if err := req.req.Callback.FulfillRandomWords(ctx, p.address, uint256.NewInt(id), words); err != nil {
		p.log.Warn("vrf callback failed", "id", id, "consumer", req.req.Consumer, "err", err)
		return fmt.Errorf("%w: request %d: %w", ErrCallbackFailed, id, err)
	}
	return nil
}

// ProofOf returns the proof published for a fulfilled request.
func (p *SignedProvider) ProofOf(id uint64) (Proof, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	proof, ok := p.fulfilled[id]
	return proof, ok
}

// Seed binds a request to the provider, its id and its parameters.
func Seed(provider common.Address, id uint64, req Request) common.Hash {
	h := blake3.NewDeriveKey(seedDomain)
	var buf [8]byte
	h.Write(provider.Bytes())
	binary.BigEndian.PutUint64(buf[:], id)
	h.Write(buf[:])
	h.Write(req.KeyHash.Bytes())
	h.Write(req.Consumer.Bytes())
	binary.BigEndian.PutUint64(buf[:], req.SubscriptionID)
	h.Write(buf[:])
	var seed common.Hash
	h.Digest().Read(seed[:])
	return seed
}

// Prove signs seed and expands the signature into n words.
func Prove(key *bls.SecretKey, seed common.Hash, n uint32) (Proof, []*uint256.Int, error) {
	if key == nil {
		return Proof{}, nil, errNilKey
	}
	sig, err := key.Sign(seed.Bytes())
	if err != nil {
		return Proof{}, nil, fmt.Errorf("sign seed: %w", err)
	}
	raw := bls.SignatureToBytes(sig)
	proof := Proof{Seed: seed, Signature: raw}
	return proof, wordsFromSignature(raw, n), nil
}

// Verify checks that proof was produced by signer and that words follow from it.
func Verify(signer *bls.PublicKey, proof Proof, words []*uint256.Int) error {
	if signer == nil {
		return fmt.Errorf("%w: no signer", ErrInvalidProof)
	}
	sig, err := bls.SignatureFromBytes(proof.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !bls.Verify(signer, sig, proof.Seed.Bytes()) {
		return fmt.Errorf("%w: bad signature", ErrInvalidProof)
	}
	expected := wordsFromSignature(proof.Signature, uint32(len(words)))
	for i := range words {
		if words[i] == nil || !words[i].Eq(expected[i]) {
			return fmt.Errorf("%w: word %d", ErrInvalidProof, i)
		}
	}
	return nil
}

func wordsFromSignature(sig []byte, n uint32) []*uint256.Int {
	words := make([]*uint256.Int, n)
	for i := uint32(0); i < n; i++ {
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], i)
		words[i] = new(uint256.Int).SetBytes(crypto.Keccak256(sig, idx[:]))
	}
	return words
}
