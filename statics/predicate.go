// Package statics holds the pure predicates that decide whether a pair of
// settlement calls satisfies a pair of orders, and how much of each order the
// pairing consumes.
package statics

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/wyvern-exchange-go/chain"
)

var (
	// ErrUnknownPredicate is returned for an unregistered (target, selector) pair
	ErrUnknownPredicate = errors.New("statics: unknown predicate")

	// ErrRejected is wrapped by every predicate rejection
	ErrRejected = errors.New("statics: rejected")

	// ErrZeroFill is returned when a predicate accepts without consuming any fill
	ErrZeroFill = errors.New("statics: predicate consumed no fill")
)

// Side is one order's view of a match: its own parameters, the call it
// authorizes and the fill recorded before this match.
type Side struct {
	Registry       common.Address
	Maker          common.Address
	Call           chain.Call
	Fill           *big.Int
	MaximumFill    *big.Int
	ListingTime    uint64
	ExpirationTime uint64
	Extradata      []byte
}

// Input is evaluated for the Order side against the Counter side
type Input struct {
	Order   Side
	Counter Side
	Matcher common.Address
}

// Predicate validates an Input and returns the fill it consumes from Order.
// It must not have side effects; any error is a rejection.
type Predicate func(in Input) (*big.Int, error)

type predicateKey struct {
	target   common.Address
	selector chain.Selector
}

// Registry dispatches (target, selector) pairs to predicates
type Registry struct {
	predicates map[predicateKey]Predicate
	names      map[predicateKey]string
	targets    map[common.Address]bool
}

// NewRegistry creates an empty predicate registry
func NewRegistry() *Registry {
	return &Registry{
		predicates: make(map[predicateKey]Predicate),
		names:      make(map[predicateKey]string),
		targets:    make(map[common.Address]bool),
	}
}

// Register installs p under target and the selector of signature
func (r *Registry) Register(target common.Address, signature string, p Predicate) chain.Selector {
	selector := chain.NewSelector(signature)
	key := predicateKey{target: target, selector: selector}
	r.predicates[key] = p
	r.names[key] = signature
	r.targets[target] = true
	return selector
}

// Lookup returns the predicate registered for (target, selector)
func (r *Registry) Lookup(target common.Address, selector chain.Selector) (Predicate, bool) {
	p, ok := r.predicates[predicateKey{target: target, selector: selector}]
	return p, ok
}

// HasTarget reports whether any predicate lives at target
func (r *Registry) HasTarget(target common.Address) bool {
	return r.targets[target]
}

// Signatures returns the registered signatures at target, sorted
func (r *Registry) Signatures(target common.Address) []string {
	var out []string
	for key, name := range r.names {
		if key.target == target {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Evaluate runs the predicate selected by (target, selector). A nil or
// non-positive fill is a rejection.
func (r *Registry) Evaluate(target common.Address, selector chain.Selector, in Input) (*big.Int, error) {
	p, ok := r.Lookup(target, selector)
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrUnknownPredicate, selector, target.Hex())
	}
	if in.Order.Fill == nil {
		in.Order.Fill = new(big.Int)
	}
	if in.Counter.Fill == nil {
		in.Counter.Fill = new(big.Int)
	}
	fill, err := p(in)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if fill == nil || fill.Sign() <= 0 {
		return nil, ErrZeroFill
	}
	return fill, nil
}

func reject(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}
