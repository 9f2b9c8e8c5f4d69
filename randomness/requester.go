// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package randomness

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/codec"
	"github.com/luxfi/jackpot/messenger"
	"github.com/luxfi/jackpot/metrics"
	"github.com/luxfi/jackpot/vrf"
)

// ProviderConfig is the static request configuration sent with every
// provider request.
type ProviderConfig struct {
	KeyHash          common.Hash `json:"keyHash" yaml:"keyHash"`
	SubscriptionID   uint64      `json:"subscriptionId" yaml:"subscriptionId"`
	MinConfirmations uint16      `json:"confirmations" yaml:"confirmations"`
	CallbackGasLimit uint32      `json:"callbackGasLimit" yaml:"callbackGasLimit"`
	NumWords         uint32      `json:"numWords" yaml:"numWords"`
}

// Verify checks the bounds every provider enforces.
func (c ProviderConfig) Verify() error {
	if c.MinConfirmations < vrf.MinRequestConfirmations || c.MinConfirmations > vrf.MaxRequestConfirmations {
		return fmt.Errorf("%w: %d", vrf.ErrInvalidConfirmations, c.MinConfirmations)
	}
	if c.NumWords == 0 || c.NumWords > vrf.MaxNumWords {
		return fmt.Errorf("%w: %d", vrf.ErrInvalidNumWords, c.NumWords)
	}
	if c.CallbackGasLimit > vrf.MaxCallbackGasLimit {
		return fmt.Errorf("%w: %d", vrf.ErrGasLimitTooHigh, c.CallbackGasLimit)
	}
	return nil
}

// Requester is the compute-chain contract. Inbound requests open a provider
// request; the provider's callback is relayed back to the home consumer.
type Requester struct {
	*messenger.App

	address common.Address
	auth    access.Authority
	sender  messenger.Sender
	db      database.Database
	events  codec.LogSink

	provider     vrf.Provider
	config       ProviderConfig
	homeChainID  uint32
	homeConsumer common.Address

	log     log.Logger
	metrics *metrics.Metrics

	mu sync.RWMutex
}

var _ vrf.Fulfiller = (*Requester)(nil)

// NewRequester creates the requester deployed at address. The provider and
// the home consumer are configured afterwards through the admin setters.
func NewRequester(
	address common.Address,
	auth access.Authority,
	sender messenger.Sender,
	db database.Database,
	events codec.LogSink,
	logger log.Logger,
	m *metrics.Metrics,
) *Requester {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	r := &Requester{
		address: address,
		auth:    auth,
		sender:  sender,
		db:      db,
		events:  events,
		log:     logger,
		metrics: m,
	}
	r.App = messenger.NewApp(address, auth, r.handle, logger, m)
	return r
}

func (r *Requester) handle(ctx context.Context, srcChainID uint32, _ common.Address, payload []byte) error {
	req, err := codec.DecodeRequest(payload)
	if err != nil {
		r.metrics.Reject(metrics.ReasonMalformed)
		r.log.Warn("dropping malformed request payload", "srcChain", srcChainID, "size", len(payload), "err", err)
		return err
	}
	return r.requestForHome(ctx, req.RequestID, req.User)
}

// requestForHome opens a provider request on behalf of a home-chain request
// and remembers which home request it answers.
func (r *Requester) requestForHome(ctx context.Context, requestID uint64, user common.Address) error {
	r.mu.RLock()
	provider, cfg := r.provider, r.config
	r.mu.RUnlock()
	if provider == nil {
		return ErrNoProvider
	}

	vrfID, err := provider.RequestRandomWords(ctx, vrf.Request{
		KeyHash:          cfg.KeyHash,
		SubscriptionID:   cfg.SubscriptionID,
		MinConfirmations: cfg.MinConfirmations,
		CallbackGasLimit: cfg.CallbackGasLimit,
		NumWords:         cfg.NumWords,
		Consumer:         r.address,
		Callback:         r,
	})
	if err != nil {
		return fmt.Errorf("provider request for %d: %w", requestID, err)
	}

	rec := vrfRecord{requestID: requestID, user: user}
	if err := r.db.Put(vrfKey(vrfID), rec.marshal()); err != nil {
		return fmt.Errorf("store vrf request %s: %w", vrfID.Dec(), err)
	}
	if err := codec.Emit(r.events, r.address, codec.EventVRFRequested, vrfID, requestID, user); err != nil {
		return err
	}

	r.metrics.VRFRequested()
	r.log.Info("vrf requested",
		"vrfRequestId", vrfID.Dec(),
		"requestId", requestID,
		"user", user,
	)
	return nil
}

// FulfillRandomWords is the provider callback. The first word is relayed to
// the home consumer and the mapping is removed, so a second callback for the
// same id fails with ErrUnknownRequest.
func (r *Requester) FulfillRandomWords(ctx context.Context, caller common.Address, vrfRequestID *uint256.Int, words []*uint256.Int) error {
	r.mu.RLock()
	provider := r.provider
	homeChainID, homeConsumer := r.homeChainID, r.homeConsumer
	r.mu.RUnlock()

	if provider == nil || caller != provider.Address() {
		r.metrics.Reject(metrics.ReasonOnlyProvider)
		r.log.Warn("rejected fulfillment from non-provider", "caller", caller, "vrfRequestId", vrfRequestID.Dec())
		return ErrOnlyProvider
	}

	key := vrfKey(vrfRequestID)
	raw, err := r.db.Get(key)
	if err == database.ErrNotFound {
		r.metrics.Reject(metrics.ReasonUnknownRequest)
		r.log.Warn("fulfillment for unknown vrf request", "vrfRequestId", vrfRequestID.Dec())
		return fmt.Errorf("%w: vrf %s", ErrUnknownRequest, vrfRequestID.Dec())
	}
	if err != nil {
		return err
	}
	rec, err := unmarshalVRFRecord(raw)
	if err != nil {
		return err
	}
	if len(words) == 0 || words[0] == nil {
		return ErrNoWords
	}
	if homeConsumer == (common.Address{}) {
		return ErrNoRemote
	}

	payload, err := codec.EncodeResponse(codec.Response{
		RequestID:  rec.requestID,
		User:       rec.user,
		Randomness: words[0],
	})
	if err != nil {
		return err
	}
	handle, err := r.sender.Send(ctx, r.address, homeChainID, homeConsumer, payload)
	if err != nil {
		return fmt.Errorf("send response %d: %w", rec.requestID, err)
	}
	if err := r.db.Delete(key); err != nil {
		return err
	}
	if err := codec.Emit(r.events, r.address, codec.EventResponseSent, rec.requestID, rec.user, words[0]); err != nil {
		return err
	}

	r.metrics.ResponseSent()
	r.log.Info("response sent",
		"requestId", rec.requestID,
		"user", rec.user,
		"vrfRequestId", vrfRequestID.Dec(),
		"handle", handle,
	)
	return nil
}

// Pending returns the provider request ids still waiting for a callback.
func (r *Requester) Pending() ([]*uint256.Int, error) {
	it := r.db.NewIteratorWithPrefix(vrfPrefix)
	defer it.Release()

	ids := make([]*uint256.Int, 0)
	for it.Next() {
		key := it.Key()
		ids = append(ids, new(uint256.Int).SetBytes(key[len(vrfPrefix):]))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Lt(ids[j]) })
	return ids, nil
}

// Lookup returns the home request answered by provider request vrfRequestID.
func (r *Requester) Lookup(vrfRequestID *uint256.Int) (uint64, common.Address, bool) {
	raw, err := r.db.Get(vrfKey(vrfRequestID))
	if err != nil {
		return 0, common.Address{}, false
	}
	rec, err := unmarshalVRFRecord(raw)
	if err != nil {
		return 0, common.Address{}, false
	}
	return rec.requestID, rec.user, true
}

// SetProvider switches the randomness provider. Outstanding requests keep
// the provider they were opened with.
func (r *Requester) SetProvider(caller common.Address, provider vrf.Provider) error {
	if err := r.auth.Authorize(caller); err != nil {
		return err
	}
	if provider == nil {
		return ErrNoProvider
	}
	r.mu.Lock()
	r.provider = provider
	r.mu.Unlock()
	r.log.Info("provider set", "provider", provider.Address())
	return nil
}

// SetProviderConfig replaces the static request configuration.
func (r *Requester) SetProviderConfig(caller common.Address, cfg ProviderConfig) error {
	if err := r.auth.Authorize(caller); err != nil {
		return err
	}
	if err := cfg.Verify(); err != nil {
		return err
	}
	r.mu.Lock()
	r.config = cfg
	r.mu.Unlock()
	r.log.Info("provider config set",
		"subscription", cfg.SubscriptionID,
		"confirmations", cfg.MinConfirmations,
		"gasLimit", cfg.CallbackGasLimit,
		"words", cfg.NumWords,
	)
	return nil
}

// SetHomeConsumer registers the home-chain consumer as both the response
// destination and the trusted remote for chainID.
func (r *Requester) SetHomeConsumer(caller common.Address, chainID uint32, consumer common.Address) error {
	if err := r.SetTrustedRemoteAddress(caller, chainID, consumer); err != nil {
		return err
	}
	r.mu.Lock()
	r.homeChainID = chainID
	r.homeConsumer = consumer
	r.mu.Unlock()
	return nil
}

// ProviderConfig returns the current static request configuration.
func (r *Requester) ProviderConfig() ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// HomeConsumer returns the configured response destination.
func (r *Requester) HomeConsumer() (uint32, common.Address) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.homeChainID, r.homeConsumer
}
