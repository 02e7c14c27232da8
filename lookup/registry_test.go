package lookup

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/poiesic/clinrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ICD10Codes": [{"ICD10Code": "J45.909", "Description": "Unspecified asthma"}]}`)
	}))
	defer srv.Close()

	var slept atomic.Int32
	icd, err := NewAgent(NewICD(srv.URL), noDelay(&slept))
	require.NoError(t, err)
	registry := NewRegistry(icd)

	t.Run("registered system", func(t *testing.T) {
		r, err := registry.Run(context.Background(), core.CodeLookupAction{System: core.CodeSystemICD, Name: "asthma"})
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, "J45.909", r.Code)
	})

	t.Run("blank name falls through to alternates", func(t *testing.T) {
		r, err := registry.Run(context.Background(), core.CodeLookupAction{System: core.CodeSystemICD}, "", "asthma")
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, "J45.909", r.Code)
	})

	t.Run("no system is a no-op", func(t *testing.T) {
		r, err := registry.Run(context.Background(), core.CodeLookupAction{Name: "asthma"})
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("unknown system", func(t *testing.T) {
		_, err := registry.Run(context.Background(), core.CodeLookupAction{System: core.CodeSystemRxNorm, Name: "albuterol"})
		assert.ErrorIs(t, err, ErrUnknownSystem)
	})
}

func TestNewDefaultRegistry(t *testing.T) {
	registry, err := NewDefaultRegistry()
	require.NoError(t, err)

	assert.Equal(t, []core.CodeSystem{core.CodeSystemICD, core.CodeSystemRxNorm}, registry.Systems())

	icd, err := registry.Agent(core.CodeSystemICD)
	require.NoError(t, err)
	rx, err := registry.Agent(core.CodeSystemRxNorm)
	require.NoError(t, err)
	assert.NotSame(t, icd.permits, rx.permits, "each backend owns its permits")
}
