package lookup

import (
	"net/url"
	"strings"

	"github.com/poiesic/clinrag/core"
	"github.com/tidwall/gjson"
)

const (
	// DefaultRxNormURL is the RxNav approximate-term endpoint.
	DefaultRxNormURL = "https://rxnav.nlm.nih.gov/REST/approximateTerm.json"

	// DefaultICDURL is the ICD-10 search endpoint.
	DefaultICDURL = "https://icd.mediware.com/api/ICD10/Find"

	rxNormMaxEntries = "5"
)

// RxNorm resolves medication names to RxCUIs.
type RxNorm struct {
	BaseURL string
}

var _ Backend = (*RxNorm)(nil)

// NewRxNorm returns an RxNorm backend; an empty baseURL selects the public API.
func NewRxNorm(baseURL string) *RxNorm {
	if baseURL == "" {
		baseURL = DefaultRxNormURL
	}
	return &RxNorm{BaseURL: baseURL}
}

func (b *RxNorm) System() core.CodeSystem {
	return core.CodeSystemRxNorm
}

func (b *RxNorm) URL(term string) string {
	q := url.Values{}
	q.Set("term", term)
	q.Set("maxEntries", rxNormMaxEntries)
	return b.BaseURL + "?" + q.Encode()
}

// Parse takes the first candidate carrying both an rxcui and a name.
func (b *RxNorm) Parse(body []byte) (*core.CodeResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedResponse
	}
	for _, c := range gjson.GetBytes(body, "approximateGroup.candidate").Array() {
		code := strings.TrimSpace(c.Get("rxcui").String())
		name := strings.TrimSpace(c.Get("name").String())
		if code == "" || name == "" {
			continue
		}
		return &core.CodeResult{Name: name, Code: code, System: core.CodeSystemRxNorm}, nil
	}
	return nil, nil
}

// ICD resolves condition and diagnosis terms to ICD-10 codes.
type ICD struct {
	BaseURL string
}

var _ Backend = (*ICD)(nil)

// NewICD returns an ICD backend; an empty baseURL selects the public API.
func NewICD(baseURL string) *ICD {
	if baseURL == "" {
		baseURL = DefaultICDURL
	}
	return &ICD{BaseURL: baseURL}
}

func (b *ICD) System() core.CodeSystem {
	return core.CodeSystemICD
}

func (b *ICD) URL(term string) string {
	q := url.Values{}
	q.Set("ICD10Search", term)
	return b.BaseURL + "?" + q.Encode()
}

// Parse takes the first entry carrying both a code and a description.
func (b *ICD) Parse(body []byte) (*core.CodeResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedResponse
	}
	for _, c := range gjson.GetBytes(body, "ICD10Codes").Array() {
		code := strings.TrimSpace(c.Get("ICD10Code").String())
		name := strings.TrimSpace(c.Get("Description").String())
		if code == "" || name == "" {
			continue
		}
		return &core.CodeResult{Name: name, Code: code, System: core.CodeSystemICD}, nil
	}
	return nil, nil
}
