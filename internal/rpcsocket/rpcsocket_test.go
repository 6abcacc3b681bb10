package rpcsocket

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestDispatchUnknownMethodReturnsError(t *testing.T) {
	s := NewServer(nil, nil, nil)
	resp := s.dispatch(Request{Method: "eth_call"})
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestServeHTTPRoutesRegisteredMethod(t *testing.T) {
	estimateGas := func(params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"0x5208"`), nil
	}
	s := NewServer(estimateGas, nil, nil)
	ts := httptest.NewServer(s)
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{ID: json.RawMessage(`1`), Method: "eth_estimateGas"}))

	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	require.Nil(t, resp.Error)
	require.Equal(t, `"0x5208"`, string(resp.Result))
}
