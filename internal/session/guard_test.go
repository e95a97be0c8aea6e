package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "portal/pkg/domain-errors"
)

type countingEnder struct {
	calls int
	err   error
}

func (c *countingEnder) Logout(context.Context) error {
	c.calls++
	return c.err
}

func TestEndOnRejection(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		err        error
		wantLogout bool
		wantCode   dErrors.Code
	}{
		{name: "nil passes", err: nil},
		{name: "401 ends session", err: dErrors.New(dErrors.CodeUnauthorized, "me failed"), wantLogout: true, wantCode: dErrors.CodeUnauthorized},
		{name: "403 ends session", err: dErrors.New(dErrors.CodeForbidden, "delete failed"), wantLogout: true, wantCode: dErrors.CodeUnauthorized},
		{name: "validation passes through", err: dErrors.New(dErrors.CodeValidation, "bad title"), wantCode: dErrors.CodeValidation},
		{name: "plain error passes through", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ender := &countingEnder{}
			got := EndOnRejection(ctx, ender, nil, tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Error(t, got)
			if tt.wantLogout {
				assert.Equal(t, 1, ender.calls)
			} else {
				assert.Zero(t, ender.calls)
			}
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, dErrors.CodeOf(got))
			}
		})
	}
}

func TestEndOnRejectionSwallowsLogoutFailure(t *testing.T) {
	ender := &countingEnder{err: errors.New("disk full")}
	got := EndOnRejection(context.Background(), ender, nil, dErrors.New(dErrors.CodeUnauthorized, "x"))
	assert.True(t, dErrors.HasCode(got, dErrors.CodeUnauthorized))
	assert.Equal(t, 1, ender.calls)
}
