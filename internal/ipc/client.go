package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// MonitorStart starts polling the record store.
func (c *Client) MonitorStart() (*MonitorResponse, error) {
	return call[MonitorRequest, MonitorResponse](c, "MonitorStart", MonitorRequest{})
}

// MonitorStop stops polling the record store.
func (c *Client) MonitorStop() (*MonitorResponse, error) {
	return call[MonitorRequest, MonitorResponse](c, "MonitorStop", MonitorRequest{})
}

// MonitorRestart restarts polling after the configured delay.
func (c *Client) MonitorRestart() (*MonitorResponse, error) {
	return call[MonitorRequest, MonitorResponse](c, "MonitorRestart", MonitorRequest{})
}

// SetInterval changes the check interval in milliseconds.
func (c *Client) SetInterval(ms int) (*MonitorResponse, error) {
	return call[IntervalRequest, MonitorResponse](c, "SetInterval", IntervalRequest{IntervalMS: ms})
}

// InsertTest inserts a diagnostic record. An empty key lets the store choose.
func (c *Client) InsertTest(key string) (*InsertTestResponse, error) {
	return call[InsertTestRequest, InsertTestResponse](c, "InsertTest", InsertTestRequest{ExternalKey: key})
}

// Tasks lists running tasks and awaited artifacts.
func (c *Client) Tasks() (*TasksResponse, error) {
	return call[TasksRequest, TasksResponse](c, "Tasks", TasksRequest{})
}

// Outcomes lists journaled outcomes.
func (c *Client) Outcomes(req OutcomesRequest) (*OutcomesResponse, error) {
	return call[OutcomesRequest, OutcomesResponse](c, "Outcomes", req)
}

// StoreStats returns record counts from the store.
func (c *Client) StoreStats() (*StoreStatsResponse, error) {
	return call[StoreStatsRequest, StoreStatsResponse](c, "StoreStats", StoreStatsRequest{})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailRequest, LogTailResponse](c, "LogTail", req)
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
