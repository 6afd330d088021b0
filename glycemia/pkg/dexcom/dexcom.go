package dexcom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"ichor/glycemia/defs"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	appID            = "d89443d2-327c-4a6f-89e5-496bbb0317db"
	baseUrl          = "https://shareous1.dexcom.com/ShareWebServices/Services"
	loginEndpoint    = "General/LoginPublisherAccountByName"
	readingsEndpoint = "Publisher/ReadPublisherLatestGlucoseValues"

	// One day's worth.
	MinuteLimit = 1440
	CountLimit  = 288
)

type Client struct {
	client      *http.Client
	logger      *zap.Logger
	accountName string
	password    string
	sessionID   string
}

type Source interface {
	Readings(ctx context.Context, minutes, maxCount int) ([]defs.Reading, error)
}

type LoginRequest struct {
	AccountName   string `json:"accountName"`
	Password      string `json:"password"`
	ApplicationID string `json:"applicationId"`
}

type Reading struct {
	WT          string  `json:"WT"`
	SystemTime  string  `json:"ST"`
	DisplayTime string  `json:"DT"`
	Value       float64 `json:"Value"`
	Trend       string  `json:"Trend"`
}

func New(accountName, password string, logger *zap.Logger) *Client {
	return &Client{
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		accountName: accountName,
		password:    password,
	}
}

// Readings fetches readings from Dexcom's Share API, oldest first.
// Automatically creates a new session when it expires.
func (c *Client) Readings(ctx context.Context, minutes, maxCount int) ([]defs.Reading, error) {
	rs, err := c.readings(ctx, minutes, maxCount)
	if err == nil {
		return rs, nil
	}
	c.logger.Debug("refreshing session", zap.Error(err))
	if _, err = c.CreateSession(ctx); err != nil {
		return nil, err
	}
	return c.readings(ctx, minutes, maxCount)
}

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	lreq := &LoginRequest{
		AccountName:   c.accountName,
		Password:      c.password,
		ApplicationID: appID,
	}

	b, err := json.Marshal(lreq)
	if err != nil {
		return "", err
	}

	c.logger.Debug("making login request for sessionID",
		zap.String("account", c.accountName),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseUrl+"/"+loginEndpoint, bytes.NewBuffer(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("unable to create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unable to create session: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	c.sessionID = strings.Trim(string(body), "\"")

	c.logger.Debug("successfully obtained sessionID")

	return c.sessionID, nil
}

func (c *Client) readings(ctx context.Context, minutes, maxCount int) ([]defs.Reading, error) {
	if minutes > MinuteLimit || maxCount > CountLimit {
		return nil, fmt.Errorf("window too large: minutes %d, maxCount %d", minutes, maxCount)
	}

	params := url.Values{
		"sessionId": {c.sessionID},
		"minutes":   {strconv.Itoa(minutes)},
		"maxCount":  {strconv.Itoa(maxCount)},
	}

	c.logger.Debug("making fetch request",
		zap.Int("minutes", minutes),
		zap.Int("maximum count", maxCount),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseUrl+"/"+readingsEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var readings []*Reading
	if err = json.NewDecoder(resp.Body).Decode(&readings); err != nil {
		c.logger.Debug("failed to decode readings response")
		return nil, err
	}

	c.logger.Debug("received readings from share API",
		zap.Int("count", len(readings)),
	)

	rs := make([]defs.Reading, len(readings))
	for i, r := range readings {
		tr, err := transform(r)
		if err != nil {
			return nil, err
		}
		rs[i] = tr
	}

	// Share returns newest first.
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Time.Before(rs[j].Time)
	})

	return rs, nil
}

func transform(r *Reading) (defs.Reading, error) {
	if len(r.WT) < 5 {
		return defs.Reading{}, fmt.Errorf("malformed timestamp %q", r.WT)
	}
	parsedTime := strings.Trim(r.WT[4:], "()")
	unix, err := strconv.ParseInt(parsedTime, 10, 64)
	if err != nil {
		return defs.Reading{}, fmt.Errorf("unable to parse timestamp %q: %w", r.WT, err)
	}

	return defs.Reading{
		Time:  time.UnixMilli(unix),
		Value: r.Value,
		Trend: r.Trend,
	}, nil
}
