package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Good("1.2.3.4"), "good 1.2.3.4"},
		{NoChange("2001:db8::1"), "nochg 2001:db8::1"},
		{BadAuth, "badauth"},
		{NotFqdn, "notfqdn"},
		{NoHost, "nohost"},
		{Abuse, "abuse"},
		{DNSError, "dnserr"},
		{ServiceUnavailable, "911"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "good", Good("1.2.3.4").Label())
	assert.Equal(t, "nochg", NoChange("1.2.3.4").Label())
	assert.Equal(t, "911", ServiceUnavailable.Label())
}

func TestJoinStatuses(t *testing.T) {
	body := JoinStatuses([]Status{Good("1.1.1.1"), NoHost, NoChange("::1")})
	assert.Equal(t, "good 1.1.1.1\nnohost\nnochg ::1", body)
	assert.Equal(t, "", JoinStatuses(nil))
}
