package policy

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/experience"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func tempStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "policy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// #region local

func TestLocal_UniformAtStart(t *testing.T) {
	l, err := NewLocal(DefaultConfig(), nil)
	require.NoError(t, err)

	p, err := l.Predict(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, p.ActionProbabilities, store.NumLogits)
	for _, v := range p.ActionProbabilities {
		assert.InDelta(t, 1.0/store.NumLogits, v, 1e-12)
	}
	assert.InDelta(t, 1.0/store.NumLogits, p.Confidence, 1e-12)
	assert.Zero(t, p.ValueEstimate)
}

func TestLocal_ObserveNudgesAndSaves(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpdateFrequency = 3
	st := tempStore(t)
	l, err := NewLocal(cfg, st)
	require.NoError(t, err)
	root := l.Committed()

	_, saved, err := l.Observe(game.ActionA, 2) // clamped to 1
	require.NoError(t, err)
	assert.False(t, saved)
	assert.InDelta(t, 0.01, l.Logits()[game.ActionA.Index()], 1e-12)
	assert.Equal(t, 1, l.Pending())

	l.Observe(game.ActionA, 1)
	out, saved, err := l.Observe(game.ActionB, -0.5)
	require.NoError(t, err)
	require.True(t, saved)
	assert.Equal(t, "commit", out.Action)
	assert.Zero(t, l.Pending())

	cur, err := st.Current()
	require.NoError(t, err)
	assert.Equal(t, out.VersionID, cur.VersionID)
	assert.Equal(t, root.VersionID, cur.ParentID)
	assert.Equal(t, l.Logits(), cur.Logits)
	assert.InDelta(t, 0.02, cur.Logits[game.ActionA.Index()], 1e-12)
	assert.InDelta(t, -0.005, cur.Logits[game.ActionB.Index()], 1e-12)
	assert.Equal(t, 3, cur.Updates)

	rows, err := st.ListWithCommits(5)
	require.NoError(t, err)
	assert.Equal(t, "commit", rows[0].Decision)
	assert.Contains(t, rows[0].DetailJSON, `"gate_action":"commit"`)
}

func TestLocal_InvalidActionIgnored(t *testing.T) {
	l, _ := NewLocal(DefaultConfig(), nil)
	_, saved, err := l.Observe(game.Action("TURBO"), 1)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Zero(t, l.Pending())
}

func TestLocal_GateRejectRevertsLiveLogits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gate.MaxDeltaNorm = 0.001
	l, _ := NewLocal(cfg, nil)

	l.Observe(game.ActionUp, 1)
	out, err := l.Save()
	require.NoError(t, err)
	assert.Equal(t, "gate_reject", out.Action)
	assert.Equal(t, [store.NumLogits]float64{}, l.Logits())
}

func TestLocal_EvalRollbackKeepsActiveVersion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Eval.MaxProbability = 1.0 / store.NumLogits // any tilt fails
	st := tempStore(t)
	l, _ := NewLocal(cfg, st)
	root := l.Committed()

	l.Observe(game.ActionStart, 1)
	out, err := l.Save()
	require.NoError(t, err)
	assert.Equal(t, "eval_rollback", out.Action)

	cur, _ := st.Current()
	assert.Equal(t, root.VersionID, cur.VersionID)
	assert.Equal(t, root.Logits, l.Logits())
}

func TestLocal_SaveWithoutNudgesIsNoOp(t *testing.T) {
	l, _ := NewLocal(DefaultConfig(), nil)
	out, err := l.Save()
	require.NoError(t, err)
	assert.Equal(t, "no_op", out.Action)
}

func TestLocal_ReloadsActivePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpdateFrequency = 1
	st := tempStore(t)
	l, _ := NewLocal(cfg, st)
	l.Observe(game.ActionDown, 1)

	again, err := NewLocal(cfg, st)
	require.NoError(t, err)
	assert.Equal(t, l.Logits(), again.Logits())
}

// #endregion local

// #region fallback

type stubPredictor struct {
	p   game.Prediction
	err error
}

func (s stubPredictor) Predict(context.Context, *game.Frame) (game.Prediction, error) {
	return s.p, s.err
}

func TestFallback(t *testing.T) {
	local := stubPredictor{p: game.Prediction{Confidence: 0.1}}
	remote := stubPredictor{p: game.Prediction{Confidence: 0.9}}

	p, err := Fallback{Primary: remote, Secondary: local}.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, p.Confidence)

	p, err = Fallback{Primary: stubPredictor{err: errors.New("down")}, Secondary: local}.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.1, p.Confidence)

	p, _ = Fallback{Secondary: local}.Predict(context.Background(), nil)
	assert.Equal(t, 0.1, p.Confidence)
}

// #endregion fallback

// #region client

type fakeConn struct {
	grpc.ClientConnInterface
	method string
	req    *structpb.Struct
	resp   map[string]any
	err    error
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.method = method
	f.req = args.(*structpb.Struct)
	if f.err != nil {
		return f.err
	}
	s, err := structpb.NewStruct(f.resp)
	if err != nil {
		return err
	}
	reply.(*structpb.Struct).Fields = s.Fields
	return nil
}

func uniformList(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = 1.0 / float64(n)
	}
	return out
}

func TestClient_Predict(t *testing.T) {
	conn := &fakeConn{resp: map[string]any{
		"action_probabilities": uniformList(12),
		"value_estimate":       0.5,
		"confidence":           0.2,
	}}
	c := NewClientWithConn(conn)

	img := image.NewRGBA(image.Rect(0, 0, 160, 144))
	img.Set(3, 3, color.White)
	f := game.NewFrame("c1", img)
	st := game.DefaultState(game.SceneIntro)
	f.State = &st

	p, err := c.Predict(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, predictMethod, conn.method)
	assert.Len(t, p.ActionProbabilities, 12)
	assert.Equal(t, 0.5, p.ValueEstimate)
	assert.Equal(t, 0.2, p.Confidence)

	fields := conn.req.GetFields()
	assert.Equal(t, "c1", fields["client_id"].GetStringValue())
	assert.Equal(t, "intro", fields["scene"].GetStringValue())
	assert.NotEmpty(t, fields["image_png"].GetStringValue())
	assert.NoError(t, c.Close())
}

func TestClient_PredictShortResponse(t *testing.T) {
	conn := &fakeConn{resp: map[string]any{"action_probabilities": uniformList(4)}}
	_, err := NewClientWithConn(conn).Predict(context.Background(), game.NewFrame("c1", nil))
	assert.Error(t, err)
}

func TestClient_PredictRPCError(t *testing.T) {
	conn := &fakeConn{err: errors.New("unavailable")}
	_, err := NewClientWithConn(conn).Predict(context.Background(), game.NewFrame("c1", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predict rpc")
}

func TestClient_SubmitBatch(t *testing.T) {
	conn := &fakeConn{resp: map[string]any{"accepted": 2.0}}
	next := game.DefaultState(game.SceneBattle)
	batch := []experience.Experience{
		{ID: "e1", ClientID: "c1", Action: game.ActionA, Reward: 1, State: game.DefaultState(game.SceneOverworld), NextState: &next},
		{ID: "e2", ClientID: "c1", Action: game.ActionB},
	}

	n, err := NewClientWithConn(conn).SubmitBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, submitMethod, conn.method)

	items := conn.req.GetFields()["experiences"].GetListValue().GetValues()
	require.Len(t, items, 2)
	first := items[0].GetStructValue().GetFields()
	assert.Equal(t, "A", first["action"].GetStringValue())
	assert.Equal(t, "battle", first["next_scene"].GetStringValue())
	_, hasNext := items[1].GetStructValue().GetFields()["next_scene"]
	assert.False(t, hasNext)
}

// #endregion client
