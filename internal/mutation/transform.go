package mutation

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/kingrea/pzedit/internal/docpath"
	"github.com/kingrea/pzedit/internal/document"
	"github.com/kingrea/pzedit/internal/scene"
)

// minScale is the smallest magnitude a dragged scale axis may reach.
const minScale float32 = 0.001

// Channel selects the transform vector a drag edits.
type Channel int

const (
	ChannelPosition Channel = iota
	ChannelRotation
	ChannelScale
)

func (c Channel) String() string {
	switch c {
	case ChannelPosition:
		return "position"
	case ChannelRotation:
		return "rotation"
	case ChannelScale:
		return "scale"
	default:
		return "unknown"
	}
}

func (c Channel) get(t scene.Transform) mgl32.Vec3 {
	switch c {
	case ChannelRotation:
		return t.Rotation
	case ChannelScale:
		return t.Scale
	default:
		return t.Position
	}
}

func (c Channel) set(t *scene.Transform, v mgl32.Vec3) {
	switch c {
	case ChannelRotation:
		t.Rotation = v
	case ChannelScale:
		t.Scale = v
	default:
		t.Position = v
	}
}

func clampScale(v mgl32.Vec3) mgl32.Vec3 {
	for i := range v {
		if math32.Abs(v[i]) < minScale {
			if v[i] < 0 {
				v[i] = -minScale
			} else {
				v[i] = minScale
			}
		}
	}
	return v
}

func transformPath(ctx *Context, objectID string) (docpath.Path, error) {
	path, err := scene.PathTo(ctx.roots(), objectID, scene.ObjectTransform)
	if err != nil {
		return nil, err
	}
	if err := requireDocParent(ctx, path); err != nil {
		return nil, err
	}
	return path, nil
}

func pushTransform(ctx *Context, obj *scene.Object) error {
	if ctx.Runtime == nil || obj.Instance() == nil {
		return nil
	}
	if err := ctx.Runtime.SetTransform(obj.Instance(), obj.Transform); err != nil {
		return fmt.Errorf("mutation: runtime transform of %s: %w", obj.ID, err)
	}
	return nil
}

// commitTransform writes t to the model, the runtime and the document.
func commitTransform(ctx *Context, objectID string, t scene.Transform) error {
	if err := ctx.requireScene(); err != nil {
		return err
	}
	obj, err := ctx.Scene.GetGameObject(objectID)
	if err != nil {
		return err
	}
	path, err := transformPath(ctx, objectID)
	if err != nil {
		return err
	}
	obj.Transform = t
	if err := pushTransform(ctx, obj); err != nil {
		return err
	}
	return ctx.SceneDoc.Mutate(path, t, document.Options{CreateKey: true})
}

// SetTransform replaces an object's whole transform.
type SetTransform struct {
	ObjectID  string
	Transform scene.Transform

	previous scene.Transform
}

func (m *SetTransform) Description() string {
	return fmt.Sprintf("Set transform of %s", m.ObjectID)
}

func (m *SetTransform) Apply(ctx *Context) error {
	if err := ctx.requireScene(); err != nil {
		return err
	}
	obj, err := ctx.Scene.GetGameObject(m.ObjectID)
	if err != nil {
		return err
	}
	previous := obj.Transform
	if err := commitTransform(ctx, m.ObjectID, m.Transform); err != nil {
		return err
	}
	m.previous = previous
	return nil
}

func (m *SetTransform) Undo(ctx *Context) error {
	return commitTransform(ctx, m.ObjectID, m.previous)
}

// TransformDrag edits one transform channel over many input ticks.
type TransformDrag struct {
	ObjectID string
	Channel  Channel

	phase Phase
	start scene.Transform
	final scene.Transform
}

// NewTransformDrag returns a drag in the Created phase.
func NewTransformDrag(objectID string, channel Channel) *TransformDrag {
	return &TransformDrag{ObjectID: objectID, Channel: channel}
}

func (m *TransformDrag) Description() string {
	return fmt.Sprintf("Drag %s of %s", m.Channel, m.ObjectID)
}

func (m *TransformDrag) Target() string { return m.ObjectID }

func (m *TransformDrag) Phase() Phase { return m.phase }

func (m *TransformDrag) usage(call string) error {
	return fmt.Errorf("mutation: %s on %s drag of %s: %w", call, m.phase, m.ObjectID, ErrUsage)
}

// Begin snapshots the transform so Cancel and Undo can restore it.
func (m *TransformDrag) Begin(ctx *Context) error {
	if m.phase != PhaseCreated {
		return m.usage("begin")
	}
	if err := ctx.requireScene(); err != nil {
		return err
	}
	obj, err := ctx.Scene.GetGameObject(m.ObjectID)
	if err != nil {
		return err
	}
	if _, err := transformPath(ctx, m.ObjectID); err != nil {
		return err
	}
	m.start = obj.Transform
	m.phase = PhaseBegun
	return nil
}

// Update moves the model and runtime; the document is left alone.
func (m *TransformDrag) Update(ctx *Context, in Input) error {
	if !m.phase.live() {
		return m.usage("update")
	}
	obj, err := ctx.Scene.GetGameObject(m.ObjectID)
	if err != nil {
		return err
	}
	v := in.Value
	if !in.Absolute {
		v = m.Channel.get(obj.Transform).Add(in.Value)
	}
	if m.Channel == ChannelScale {
		v = clampScale(v)
	}
	t := obj.Transform
	m.Channel.set(&t, v)
	obj.Transform = t
	if err := pushTransform(ctx, obj); err != nil {
		return err
	}
	m.phase = PhaseUpdated
	return nil
}

// Apply commits the accumulated transform with a single document write.
func (m *TransformDrag) Apply(ctx *Context) error {
	if !m.phase.live() {
		return m.usage("apply")
	}
	obj, err := ctx.Scene.GetGameObject(m.ObjectID)
	if err != nil {
		return err
	}
	path, err := transformPath(ctx, m.ObjectID)
	if err != nil {
		return err
	}
	if err := ctx.SceneDoc.Mutate(path, obj.Transform, document.Options{CreateKey: true}); err != nil {
		return err
	}
	m.final = obj.Transform
	m.phase = PhaseApplied
	return nil
}

// Cancel restores the Begin snapshot to the model and runtime.
func (m *TransformDrag) Cancel(ctx *Context) error {
	if !m.phase.live() {
		return m.usage("cancel")
	}
	obj, err := ctx.Scene.GetGameObject(m.ObjectID)
	if err != nil {
		return err
	}
	obj.Transform = m.start
	m.phase = PhaseCancelled
	return pushTransform(ctx, obj)
}

func (m *TransformDrag) Undo(ctx *Context) error {
	if m.phase != PhaseApplied {
		return m.usage("undo")
	}
	return commitTransform(ctx, m.ObjectID, m.start)
}

func (m *TransformDrag) Redo(ctx *Context) error {
	if m.phase != PhaseApplied {
		return m.usage("redo")
	}
	return commitTransform(ctx, m.ObjectID, m.final)
}
