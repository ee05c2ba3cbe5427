package signing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"text":"hello"}`)

	sig, ts := Sign("whsec_secret", payload)
	assert.True(t, strings.HasPrefix(sig, "v1="))
	assert.True(t, Verify("whsec_secret", payload, ts, sig))
}

func TestSignAtIsDeterministic(t *testing.T) {
	payload := []byte(`{"text":"hello"}`)

	a := SignAt("whsec_secret", payload, 1700000000)
	b := SignAt("whsec_secret", payload, 1700000000)
	assert.Equal(t, a, b)
}

func TestVerifyRejectsTampering(t *testing.T) {
	payload := []byte(`{"text":"hello"}`)
	sig, ts := Sign("whsec_secret", payload)

	assert.False(t, Verify("whsec_other", payload, ts, sig))
	assert.False(t, Verify("whsec_secret", []byte(`{"text":"bye"}`), ts, sig))
	assert.False(t, Verify("whsec_secret", payload, ts+1, sig))
}
