package natsclient

import (
	"testing"

	"github.com/sifan077/LinkShield/config"
	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	assert.Equal(t, "nats://localhost:4222", URL(config.NATSConfig{}))
	assert.Equal(t, "nats://bus:4333", URL(config.NATSConfig{Host: "bus", Port: 4333}))
}

func TestOptions_Credentials(t *testing.T) {
	assert.Len(t, options(config.NATSConfig{}, nil), 6)
	assert.Len(t, options(config.NATSConfig{User: "shield", Password: "pw"}, nil), 7)
}
