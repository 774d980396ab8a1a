// Golang client for percodb.
//
// Usage:
//
// create a client and stream documents
//
//	```go
//	func main() {
//	  pdb, err := client.New("ws://localhost:7113", client.Options{})
//	  ...
//	  res, err := pdb.Ingest([]client.Document{
//	    {Id: "doc-1", Fields: map[string]any{"title": "example"}},
//	  })
//	}
//	```
//
// match results do not come back on this connection; they are delivered
// through the sinks configured on the server.
package client

import (
	"fmt"
	"net/url"

	ws "github.com/gorilla/websocket"
)

type (
	Options struct {
		// Path of the streaming endpoint, "/ws" unless the server is
		// mounted under a prefix.
		Path string
	}

	// Percodb streaming client.
	//
	// Unless you know what you're doing, you probably want to use
	// the `New` function instead.
	Client struct {
		// The websocket connection used by the client
		conn *ws.Conn
		// The formatted connection url of the percodb server
		Url     *url.URL
		options Options
	}
)

func New(urlStr string, options Options) (*Client, error) {
	Url, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	if options.Path == "" {
		options.Path = "/ws"
	}
	Url.Path = options.Path

	return &Client{Url: Url, options: options}, nil
}

func (c *Client) Connect() error {
	if c.conn != nil {
		return nil
	}
	conn, _, err := ws.DefaultDialer.Dial(c.Url.String(), nil)
	if err != nil {
		return err
	}

	Log(LogLevelInfo, "Connected to percodb server")
	c.conn = conn
	return nil
}

func (c *Client) Disconnect() error {
	err := c.conn.WriteMessage(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, "Disconnect"))
	if err != nil {
		Log(LogLevelError, err.Error())
		return err
	}
	err = c.conn.Close()
	if err != nil {
		Log(LogLevelError, err.Error())
		return err
	}

	Log(LogLevelInfo, "Disconnected from percodb server")
	return nil
}

// Ingest streams one batch of documents and waits for the server's
// acknowledgement. A non-2xx reply status is returned as an error.
func (c *Client) Ingest(docs []Document) (Reply, error) {
	c.Connect()
	if c.conn == nil {
		return Reply{}, fmt.Errorf("Not connected")
	}

	err := c.conn.WriteJSON(map[string]any{"documents": docs})
	if err != nil {
		return Reply{}, err
	}

	var res Reply
	err = c.conn.ReadJSON(&res)
	if err != nil {
		return res, err
	}

	if res.Status < 200 || res.Status > 299 {
		return res, fmt.Errorf("server refused batch: %s", res.Message)
	}
	return res, nil
}
