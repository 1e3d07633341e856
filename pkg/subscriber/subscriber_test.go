package subscriber

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriber_Validate(t *testing.T) {
	valid := Subscriber{HostID: "EBIXHOST", PartnerID: "PARTNER1", UserID: "USER1"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		sub  Subscriber
	}{
		{"missing host", Subscriber{PartnerID: "P", UserID: "U"}},
		{"missing partner", Subscriber{HostID: "H", UserID: "U"}},
		{"missing user", Subscriber{HostID: "H", PartnerID: "P"}},
		{"bad characters", Subscriber{HostID: "H<1>", PartnerID: "P", UserID: "U"}},
		{"bad system", Subscriber{HostID: "H", PartnerID: "P", UserID: "U", SystemID: "with space"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.sub.Validate())
		})
	}
}

func TestSubscriber_ProductLanguage(t *testing.T) {
	assert.Equal(t, "en", Subscriber{}.ProductLanguage())
	assert.Equal(t, "de", Subscriber{Language: "de"}.ProductLanguage())
}
