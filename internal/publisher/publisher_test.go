package publisher_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arknettransit/dutyplan/internal/publisher"
)

func TestToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "veh_1", want: "veh_1"},
		{in: " ZR 101 ", want: "ZR_101"},
		{in: "a.b", want: "a_b"},
		{in: "r/12*", want: "r_12_"},
		{in: ">", want: "_"},
		{in: "", want: "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, publisher.Token(tt.in), "token %q", tt.in)
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "fleet.vehicles.veh_1_2.status", publisher.Subject("fleet", "vehicles", "veh.1.2", "status"))
}

func TestMemoryPublisher(t *testing.T) {
	p := publisher.NewMemoryPublisher()

	require.NoError(t, p.Publish(context.Background(), "a.b", map[string]string{"k": "v"}))
	require.NoError(t, p.Publish(context.Background(), "a.c", 42))

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a.b", msgs[0].Subject)

	var got map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "v", got["k"])

	assert.Error(t, p.Publish(context.Background(), "bad", make(chan int)))
}
