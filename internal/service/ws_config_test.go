package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWSURL(t *testing.T) {
	token := "11111111-2222-3333-4444-555555555555"

	var nilCfg *WSConfig
	assert.Equal(t, "/ws/try-on/"+token, nilCfg.WSURL(token))
	assert.Equal(t, "/ws/try-on/"+token, (&WSConfig{}).WSURL(token))
	assert.Equal(t, "wss://tryon.example.com/ws/try-on/"+token,
		(&WSConfig{BaseURL: "wss://tryon.example.com"}).WSURL(token))
	assert.Equal(t, "wss://tryon.example.com/ws/try-on/"+token,
		(&WSConfig{BaseURL: "wss://tryon.example.com/"}).WSURL(token))
}
