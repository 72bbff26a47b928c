package draw_test

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawspace-backend/internal/draw"
	"drawspace-backend/internal/model"
)

func newTestEngine(t *testing.T) *draw.Engine {
	t.Helper()
	e, err := draw.NewEngine(200, 200, "#ffffff", nil)
	require.NoError(t, err)
	return e
}

func drawStroke(t *testing.T, e *draw.Engine, colorHex string, width float64, points ...model.Point) *model.DrawingEvent {
	t.Helper()
	require.NotEmpty(t, points)
	require.NoError(t, e.BeginStroke(model.ToolPen, colorHex, width, points[0]))
	for _, p := range points[1:] {
		e.ExtendStroke(p)
	}
	ev := e.EndStroke()
	require.NotNil(t, ev)
	return ev
}

func TestParseColor(t *testing.T) {
	c, err := draw.ParseColor("#ff0000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, c)

	c, err = draw.ParseColor("#0f0")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, c)

	c, err = draw.ParseColor("#11223344")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}, c)

	_, err = draw.ParseColor("red-ish")
	assert.Error(t, err)

	c, err = draw.ParseColor("")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{A: 0xff}, c)
}

func TestEngine_LocalStrokeRendersImmediately(t *testing.T) {
	e := newTestEngine(t)
	drawStroke(t, e, "#ff0000", 4, model.Point{X: 10, Y: 10}, model.Point{X: 50, Y: 50})

	img := e.Image()
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, img.RGBAAt(30, 30))
	// far corner untouched
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, img.RGBAAt(190, 10))
}

func TestEngine_RemoteReplayMatchesLocalRender(t *testing.T) {
	local := newTestEngine(t)
	remote := newTestEngine(t)

	ev := drawStroke(t, local, "#ff0000", 4,
		model.Point{X: 10, Y: 10}, model.Point{X: 50, Y: 50})

	require.NoError(t, remote.Apply(ev))
	assert.Equal(t, local.Image().Pix, remote.Image().Pix)
}

func TestEngine_BrushReplayIsDeterministic(t *testing.T) {
	local := newTestEngine(t)
	remote := newTestEngine(t)

	require.NoError(t, local.BeginStroke(model.ToolBrush, "#0000ff", 8, model.Point{X: 20, Y: 20}))
	local.ExtendStroke(model.Point{X: 25, Y: 22})
	local.ExtendStroke(model.Point{X: 60, Y: 40})
	ev := local.EndStroke()
	require.NotNil(t, ev)

	require.NoError(t, remote.Apply(ev))
	assert.Equal(t, local.Image().Pix, remote.Image().Pix)

	// semi-transparent: blended pixel is neither pure blue nor pure white
	at := local.Image().RGBAAt(20, 20)
	assert.Greater(t, at.B, at.R)
	assert.Greater(t, at.R, uint8(0))
}

func TestEngine_EraserRestoresBackground(t *testing.T) {
	e := newTestEngine(t)
	drawStroke(t, e, "#000000", 6, model.Point{X: 40, Y: 40}, model.Point{X: 60, Y: 40})
	assert.Equal(t, color.RGBA{A: 0xff}, e.Image().RGBAAt(50, 40))

	require.NoError(t, e.BeginStroke(model.ToolEraser, "", 10, model.Point{X: 40, Y: 40}))
	e.ExtendStroke(model.Point{X: 60, Y: 40})
	ev := e.EndStroke()
	require.NotNil(t, ev)
	assert.Equal(t, model.EventKindErase, ev.Kind)

	// erased pixels show the background again
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, e.Image().RGBAAt(50, 40))
}

func TestEngine_ErasedAreaTracksBackgroundChange(t *testing.T) {
	e := newTestEngine(t)
	drawStroke(t, e, "#000000", 6, model.Point{X: 40, Y: 40}, model.Point{X: 60, Y: 40})

	require.NoError(t, e.BeginStroke(model.ToolEraser, "", 10, model.Point{X: 50, Y: 40}))
	e.EndStroke()

	require.NoError(t, e.SetBackground("#00ff00"))
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, e.Image().RGBAAt(50, 40))
}

func TestEngine_FiveStrokesThreeUndosOneRedo(t *testing.T) {
	e := newTestEngine(t)

	var after2 []uint8
	for i := 0; i < 5; i++ {
		if i == 2 {
			after2 = append([]uint8(nil), e.Image().Pix...)
		}
		y := float64(20 + i*30)
		drawStroke(t, e, "#ff0000", 4, model.Point{X: 10, Y: y}, model.Point{X: 100, Y: y})
	}
	require.Len(t, e.Events(), 5)

	assert.True(t, e.Undo())
	assert.True(t, e.Undo())
	assert.True(t, e.Undo())

	assert.Equal(t, after2, e.Image().Pix)
	assert.Len(t, e.Events(), 2)

	// redo restores stroke 3 exactly
	reference := newTestEngine(t)
	for i := 0; i < 3; i++ {
		y := float64(20 + i*30)
		drawStroke(t, reference, "#ff0000", 4, model.Point{X: 10, Y: y}, model.Point{X: 100, Y: y})
	}
	assert.True(t, e.Redo())
	assert.Equal(t, reference.Image().Pix, e.Image().Pix)
	assert.Len(t, e.Events(), 3)
}

func TestEngine_UndoIsBounded(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < draw.UndoDepth+5; i++ {
		drawStroke(t, e, "#000000", 2, model.Point{X: float64(i), Y: 10})
	}
	undos := 0
	for e.Undo() {
		undos++
	}
	assert.Equal(t, draw.UndoDepth, undos)
}

func TestEngine_NewStrokeClearsRedo(t *testing.T) {
	e := newTestEngine(t)
	drawStroke(t, e, "#000000", 2, model.Point{X: 10, Y: 10})
	require.True(t, e.Undo())
	drawStroke(t, e, "#000000", 2, model.Point{X: 20, Y: 20})
	assert.False(t, e.Redo())
}

func TestEngine_ClearWipesAndIsUndoable(t *testing.T) {
	e := newTestEngine(t)
	drawStroke(t, e, "#ff0000", 4, model.Point{X: 10, Y: 10}, model.Point{X: 50, Y: 50})
	before := append([]uint8(nil), e.Image().Pix...)

	e.Clear()
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, e.Image().RGBAAt(30, 30))

	require.True(t, e.Undo())
	assert.Equal(t, before, e.Image().Pix)
}

func TestEngine_TextPlacement(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.PlaceText(model.Point{X: 20, Y: 30}, "hi", "#000000"))
	require.Error(t, e.PlaceText(model.Point{X: 20, Y: 30}, "", "#000000"))

	events := e.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventKindText, events[0].Kind)
	assert.Equal(t, "hi", events[0].Text)

	// a remote engine replays the same glyphs
	remote := newTestEngine(t)
	require.NoError(t, remote.Apply(events[0]))
	assert.Equal(t, e.Image().Pix, remote.Image().Pix)
}

func TestEngine_ApplyRejectsInvalidEvents(t *testing.T) {
	e := newTestEngine(t)
	assert.Error(t, e.Apply(&model.DrawingEvent{Kind: "scribble"}))
	assert.Error(t, e.Apply(&model.DrawingEvent{Kind: model.EventKindStroke}))
}

func TestEngine_LoadSnapshotReplacesSurface(t *testing.T) {
	origin := newTestEngine(t)
	ev := drawStroke(t, origin, "#ff0000", 4, model.Point{X: 10, Y: 10}, model.Point{X: 50, Y: 50})

	snap, err := model.Fold("[]", ev)
	require.NoError(t, err)

	joiner := newTestEngine(t)
	drawStroke(t, joiner, "#0000ff", 4, model.Point{X: 100, Y: 100})
	require.NoError(t, joiner.LoadSnapshot(snap))

	assert.Equal(t, origin.Image().Pix, joiner.Image().Pix)
	assert.Empty(t, joiner.Events())
	assert.False(t, joiner.Undo())
}

type captureRelay struct {
	events []*model.DrawingEvent
}

func (r *captureRelay) Relay(ev *model.DrawingEvent) {
	r.events = append(r.events, ev)
}

func TestEngine_CommittedEventsReachRelay(t *testing.T) {
	relay := &captureRelay{}
	e, err := draw.NewEngine(100, 100, "#ffffff", relay)
	require.NoError(t, err)

	require.NoError(t, e.BeginStroke(model.ToolPen, "#000000", 2, model.Point{X: 1, Y: 1}))
	e.ExtendStroke(model.Point{X: 5, Y: 5})
	e.EndStroke()
	e.Clear()

	require.Len(t, relay.events, 2)
	assert.Equal(t, model.EventKindStroke, relay.events[0].Kind)
	assert.Equal(t, model.EventKindClear, relay.events[1].Kind)
	assert.NotZero(t, relay.events[0].Timestamp)
}
