package policy

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/experience"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/imagechange"
)

// #region methods
const (
	predictMethod = "/pokebot.policy.v1.PolicyService/Predict"
	submitMethod  = "/pokebot.policy.v1.TrainerService/SubmitBatch"
)

// #endregion methods

// #region client-struct
// Client talks to the remote policy and trainer services. Messages are
// google.protobuf.Struct so no generated stubs are needed.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to a policy or trainer gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn wraps an existing connection. Used in tests.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region predict
// Predict sends a downscaled PNG of the frame and returns the remote
// distribution.
func (c *Client) Predict(ctx context.Context, f *game.Frame) (game.Prediction, error) {
	fields := map[string]any{
		"client_id": f.ClientID,
		"frame_id":  f.ID,
	}
	if f.Image != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, imagechange.Downscale(f.Image)); err != nil {
			return game.Prediction{}, fmt.Errorf("encode frame: %w", err)
		}
		fields["image_png"] = base64.StdEncoding.EncodeToString(buf.Bytes())
	}
	if f.State != nil {
		fields["scene"] = string(f.State.Scene)
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return game.Prediction{}, fmt.Errorf("build predict request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, predictMethod, req, resp); err != nil {
		return game.Prediction{}, fmt.Errorf("predict rpc: %w", err)
	}
	return decodePrediction(resp)
}

func decodePrediction(s *structpb.Struct) (game.Prediction, error) {
	probs := s.GetFields()["action_probabilities"].GetListValue().GetValues()
	if len(probs) < game.NumActions {
		return game.Prediction{}, fmt.Errorf("predict rpc: %d probabilities, want at least %d", len(probs), game.NumActions)
	}
	p := game.Prediction{
		ActionProbabilities: make([]float64, len(probs)),
		ValueEstimate:       s.GetFields()["value_estimate"].GetNumberValue(),
		Confidence:          s.GetFields()["confidence"].GetNumberValue(),
	}
	for i, v := range probs {
		p.ActionProbabilities[i] = v.GetNumberValue()
	}
	return p, nil
}

// #endregion predict

// #region submit
// SubmitBatch ships a training batch. It returns the number of experiences
// the trainer accepted.
func (c *Client) SubmitBatch(ctx context.Context, batch []experience.Experience) (int, error) {
	items := make([]any, 0, len(batch))
	for _, e := range batch {
		item := map[string]any{
			"id":         e.ID,
			"episode_id": e.EpisodeID,
			"client_id":  e.ClientID,
			"action":     string(e.Action),
			"reward":     e.Reward,
			"objectives": map[string]any{
				"navigation": e.Objectives.Navigation,
				"battle":     e.Objectives.Battle,
				"story":      e.Objectives.Story,
			},
			"scene":      string(e.State.Scene),
			"confidence": e.Prediction.Confidence,
		}
		if e.NextState != nil {
			item["next_scene"] = string(e.NextState.Scene)
		}
		items = append(items, item)
	}

	req, err := structpb.NewStruct(map[string]any{"experiences": items})
	if err != nil {
		return 0, fmt.Errorf("build batch request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, submitMethod, req, resp); err != nil {
		return 0, fmt.Errorf("submit batch rpc: %w", err)
	}
	return int(resp.GetFields()["accepted"].GetNumberValue()), nil
}

// #endregion submit
