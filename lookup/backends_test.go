package lookup

import (
	"net/url"
	"testing"

	"github.com/poiesic/clinrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRxNorm_URL(t *testing.T) {
	b := NewRxNorm("")
	u, err := url.Parse(b.URL("metformin 500 mg"))
	require.NoError(t, err)

	assert.Equal(t, "rxnav.nlm.nih.gov", u.Host)
	assert.Equal(t, "/REST/approximateTerm.json", u.Path)
	assert.Equal(t, "metformin 500 mg", u.Query().Get("term"))
	assert.Equal(t, "5", u.Query().Get("maxEntries"))
}

func TestRxNorm_Parse(t *testing.T) {
	b := NewRxNorm("")

	t.Run("first complete candidate", func(t *testing.T) {
		r, err := b.Parse([]byte(rxNormBody))
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, core.CodeResult{Name: "lisinopril", Code: "29046", System: core.CodeSystemRxNorm}, *r)
	})

	t.Run("single candidate object", func(t *testing.T) {
		r, err := b.Parse([]byte(`{"approximateGroup": {"candidate": {"rxcui": "6809", "name": "metformin"}}}`))
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, "6809", r.Code)
	})

	t.Run("no complete candidate", func(t *testing.T) {
		r, err := b.Parse([]byte(`{"approximateGroup": {"candidate": [{"rxcui": "1"}, {"name": "x"}]}}`))
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := b.Parse([]byte(`<html>`))
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestICD_URL(t *testing.T) {
	b := NewICD("http://example.test/find")
	assert.Equal(t, "http://example.test/find?ICD10Search=type+2+diabetes", b.URL("type 2 diabetes"))
}

func TestICD_Parse(t *testing.T) {
	b := NewICD("")

	t.Run("first complete entry", func(t *testing.T) {
		body := `{"ICD10Codes": [
			{"ICD10Code": "E11", "Description": ""},
			{"ICD10Code": "E11.9", "Description": " Type 2 diabetes mellitus without complications "}
		]}`
		r, err := b.Parse([]byte(body))
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, core.CodeResult{Name: "Type 2 diabetes mellitus without complications", Code: "E11.9", System: core.CodeSystemICD}, *r)
	})

	t.Run("null codes", func(t *testing.T) {
		r, err := b.Parse([]byte(`{"ICD10Codes": null}`))
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("null body", func(t *testing.T) {
		r, err := b.Parse([]byte(`null`))
		require.NoError(t, err)
		assert.Nil(t, r)
	})
}
