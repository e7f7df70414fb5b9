package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/tbourn/ecoprenda-backend/internal/config"
)

const clarifaiSuccess = 10000

// Clarifai calls the Clarifai v2 model-outputs REST endpoint.
type Clarifai struct {
	HTTP       *http.Client
	BaseURL    string
	PAT        string
	UserID     string
	AppID      string
	ModelID    string
	MaxRetries int
	RetryDelay time.Duration
}

// NewClarifai returns a client, or Disabled when cfg carries no PAT.
func NewClarifai(cfg config.ClassifierConfig, timeout time.Duration) Classifier {
	if cfg.PAT == "" {
		return Disabled{}
	}
	return &Clarifai{
		HTTP:       &http.Client{Timeout: timeout},
		BaseURL:    cfg.BaseURL,
		PAT:        cfg.PAT,
		UserID:     cfg.UserID,
		AppID:      cfg.AppID,
		ModelID:    cfg.ModelID,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Second,
	}
}

type clarifaiImage struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

type clarifaiInput struct {
	Data struct {
		Image clarifaiImage `json:"image"`
	} `json:"data"`
}

type clarifaiRequest struct {
	Inputs []clarifaiInput `json:"inputs"`
}

type clarifaiConcept struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type clarifaiResponse struct {
	Status struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
	} `json:"status"`
	Outputs []struct {
		Data struct {
			Regions []struct {
				RegionInfo struct {
					BoundingBox struct {
						TopRow    float64 `json:"top_row"`
						LeftCol   float64 `json:"left_col"`
						BottomRow float64 `json:"bottom_row"`
						RightCol  float64 `json:"right_col"`
					} `json:"bounding_box"`
				} `json:"region_info"`
				Data struct {
					Concepts []clarifaiConcept `json:"concepts"`
				} `json:"data"`
			} `json:"regions"`
			Concepts []clarifaiConcept `json:"concepts"`
		} `json:"data"`
	} `json:"outputs"`
}

// Detect implements Classifier. Transport errors, 5xx responses and
// non-success statuses are retried up to MaxRetries times.
func (c *Clarifai) Detect(ctx context.Context, img Image) ([]Detection, error) {
	if img.URL == "" && len(img.Bytes) == 0 {
		return []Detection{}, nil
	}
	var in clarifaiInput
	if img.URL != "" {
		in.Data.Image.URL = img.URL
	} else {
		in.Data.Image.Base64 = base64.StdEncoding.EncodeToString(img.Bytes)
	}
	body, err := json.Marshal(clarifaiRequest{Inputs: []clarifaiInput{in}})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 && c.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}
		dets, retry, err := c.once(ctx, body)
		if err == nil {
			return dets, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, lastErr
}

func (c *Clarifai) once(ctx context.Context, body []byte) ([]Detection, bool, error) {
	endpoint := fmt.Sprintf("%s/v2/users/%s/apps/%s/models/%s/outputs",
		c.BaseURL, url.PathEscape(c.UserID), url.PathEscape(c.AppID), url.PathEscape(c.ModelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Key "+c.PAT)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, false, err
		}
		return nil, true, fmt.Errorf("clarifai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, fmt.Errorf("clarifai read: %w", err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("clarifai http %d", resp.StatusCode)
	}
	var out clarifaiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("clarifai decode (http %d): %w", resp.StatusCode, err)
	}
	if out.Status.Code != clarifaiSuccess {
		return nil, resp.StatusCode < 400, fmt.Errorf("clarifai status %d: %s", out.Status.Code, out.Status.Description)
	}

	dets := []Detection{}
	if len(out.Outputs) == 0 {
		return dets, false, nil
	}
	data := out.Outputs[0].Data
	for _, r := range data.Regions {
		bb := r.RegionInfo.BoundingBox
		box := Box{Top: round(bb.TopRow, 3), Left: round(bb.LeftCol, 3), Bottom: round(bb.BottomRow, 3), Right: round(bb.RightCol, 3)}
		for _, cc := range r.Data.Concepts {
			dets = append(dets, Detection{Name: cc.Name, Confidence: round(cc.Value, 4), Box: box})
		}
	}
	// Classification models report concepts without regions.
	if len(data.Regions) == 0 {
		for _, cc := range data.Concepts {
			dets = append(dets, Detection{Name: cc.Name, Confidence: round(cc.Value, 4)})
		}
	}
	return dets, false, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
