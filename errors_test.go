package wyvern

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaifufi/wyvern-exchange-go/ledger"
)

func TestMatchError(t *testing.T) {
	cause := fmt.Errorf("wrapped: %w", ledger.ErrFilled)
	err := error(matchError(ReasonFirstInvalid, ErrOrderInvalid, cause))

	assert.Equal(t, "First order has invalid parameters. (wrapped: order completely filled: fill exceeds order maximum)", err.Error())
	assert.ErrorIs(t, err, ErrOrderInvalid)
	assert.ErrorIs(t, err, ErrFillExceeded)
	assert.ErrorIs(t, err, ledger.ErrFilled)
	assert.NotErrorIs(t, err, ErrAuthorizationFailed)
	assert.Equal(t, ReasonFirstInvalid, MatchReason(fmt.Errorf("outer: %w", err)))

	bare := matchError(ReasonSelfMatch, ErrOrderInvalid, nil)
	assert.Equal(t, "Self-matching orders is prohibited.", bare.Error())
	assert.Empty(t, MatchReason(errors.New("other")))
}
