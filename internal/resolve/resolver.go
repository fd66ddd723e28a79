// Package resolve walks the pointer chain from an on-chain registry token
// to the off-chain widget manifest it references: tokenURI -> AgentCard ->
// A2UI_MANIFEST endpoint -> manifest document. The manifest is returned
// unvalidated; trust-checking is the manifest package's job, kept separate
// so resolution and validation can be tested and replaced independently.
package resolve

import (
	"context"
	"encoding/json"
	"log"

	"emberhost.ai/internal/manifest"
)

// ChainReader reads the registry's content pointer for a token. Any
// conforming on-chain client satisfies it.
type ChainReader interface {
	TokenURI(ctx context.Context, registry, tokenID string) (string, error)
}

// Fetcher retrieves a JSON document from a content URI. Implementations
// must support at least https:// and ipfs:// schemes.
type Fetcher interface {
	FetchJSON(ctx context.Context, uri string) (json.RawMessage, error)
}

type Resolver struct {
	chain ChainReader
	fetch Fetcher
	log   *log.Logger
}

func New(chain ChainReader, fetch Fetcher, logger *log.Logger) *Resolver {
	return &Resolver{chain: chain, fetch: fetch, log: logger}
}

// Resolution is the product of one successful pointer-chain walk. The card
// and manifest are owned by the caller; the resolver keeps no state.
type Resolution struct {
	Card        manifest.AgentCard
	CardURI     string
	Manifest    json.RawMessage
	ManifestURI string
}

// Resolve walks the chain. Exactly two fetches happen on success (AgentCard,
// then manifest); none happen after a missing manifest endpoint.
func (r *Resolver) Resolve(ctx context.Context, registry, tokenID string) (Resolution, error) {
	cardURI, err := r.chain.TokenURI(ctx, registry, tokenID)
	if err != nil {
		return Resolution{}, &ChainReadError{Registry: registry, TokenID: tokenID, Err: err}
	}

	rawCard, err := r.fetch.FetchJSON(ctx, cardURI)
	if err != nil {
		return Resolution{}, err
	}
	card, err := manifest.ParseAgentCard(rawCard)
	if err != nil {
		return Resolution{}, &InvalidAgentCardError{URI: cardURI, Err: err}
	}

	ep := card.ManifestEndpoint()
	if ep == nil {
		return Resolution{}, ErrManifestEndpointMissing
	}

	rawManifest, err := r.fetch.FetchJSON(ctx, ep.Endpoint)
	if err != nil {
		return Resolution{}, err
	}

	if r.log != nil {
		r.log.Printf("resolved %s/%s -> %s", registry, tokenID, ep.Endpoint)
	}
	return Resolution{
		Card:        card,
		CardURI:     cardURI,
		Manifest:    rawManifest,
		ManifestURI: ep.Endpoint,
	}, nil
}
