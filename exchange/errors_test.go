package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
)

func TestClassifyAPIError(t *testing.T) {
	rate := &common.APIError{Code: -1003, Message: "Too many requests"}
	assert.Equal(t, KindTransient, Classify(rate).Kind)
	assert.True(t, IsTransient(rate))

	margin := &common.APIError{Code: -2019, Message: "Margin is insufficient"}
	assert.Equal(t, KindPermanent, Classify(margin).Kind)
	assert.False(t, IsTransient(margin))

	// unknown codes are never retried
	unknown := &common.APIError{Code: -4999, Message: "something new"}
	assert.Equal(t, KindPermanent, Classify(unknown).Kind)
}

func TestClassifyContextAndMessages(t *testing.T) {
	assert.Equal(t, KindConnectivity, Classify(context.DeadlineExceeded).Kind)
	assert.True(t, IsConnectivity(context.DeadlineExceeded))

	assert.Equal(t, KindTransient, Classify(errors.New("request timed out")).Kind)
	assert.Equal(t, KindConnectivity, Classify(errors.New("dial tcp: connection refused")).Kind)
	assert.Equal(t, KindPermanent, Classify(errors.New("signature for this request is not valid")).Kind)
}

func TestClassifyPassthroughAndWrap(t *testing.T) {
	orig := &Error{Kind: KindTransient, Code: -1007, Err: errors.New("timeout")}
	assert.Same(t, orig, Classify(fmt.Errorf("submit: %w", orig)))

	wrapped := fmt.Errorf("submit: %w", &common.APIError{Code: -1121, Message: "Invalid symbol"})
	c := Classify(wrapped)
	assert.Equal(t, KindPermanent, c.Kind)
	assert.Equal(t, int64(-1121), c.Code)
}
