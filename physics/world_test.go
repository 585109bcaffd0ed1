package physics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	begins, ends map[string]int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{begins: map[string]int{}, ends: map[string]int{}}
}

func (l *recordingListener) BeginContact(b *Body) { l.begins[b.Name()]++ }
func (l *recordingListener) EndContact(b *Body)   { l.ends[b.Name()]++ }

var testGround = Ground{SurfaceY: 10, Friction: 1, Restitution: 0.2}

// pendulum builds two boxes hanging from each other, far above the ground.
func pendulum() (*World, *RevoluteJoint) {
	w := NewWorld(V(0, 10), testGround)
	upper := w.CreateBody(BodyDef{Name: "upper", Position: V(0, 0), Mass: 5, Inertia: 2, Shape: Box(0.2, 1), Collides: true})
	lower := w.CreateBody(BodyDef{Name: "lower", Position: V(1, 1), Angle: 0.3, Mass: 3, Inertia: 1, Shape: Box(0.2, 1), Collides: true})
	j := w.CreateRevoluteJoint(RevoluteJointDef{
		Name: "hinge", BodyA: upper, BodyB: lower, Anchor: V(0.5, 0.5),
		EnableLimit: true, LowerAngle: -0.5, UpperAngle: 0.5,
		EnableMotor: true, MotorSpeed: 1, MaxMotorTorque: 50,
	})
	return w, j
}

func TestWorldStep(t *testing.T) {
	t.Run("free body accelerates under gravity", func(t *testing.T) {
		w := NewWorld(V(0, 10), testGround)
		b := w.CreateBody(BodyDef{Name: "ball", Position: V(0, 0), Mass: 1, Inertia: 1, Shape: Circle(0.5), Collides: true})

		w.Step(0.04, 5, 5)

		require.InDelta(t, 0.4, b.LinearVelocity().Y, 1e-6, "Velocity should gain g*dt")
		require.InDelta(t, 0.016, b.Position().Y, 1e-6, "Position should use the updated velocity")
		require.Equal(t, 1, w.StepCount(), "Step count should advance")
	})

	t.Run("joint keeps anchors together", func(t *testing.T) {
		w, j := pendulum()
		for i := 0; i < 50; i++ {
			w.Step(0.04, 5, 5)
		}
		gap := j.AnchorA().Sub(j.AnchorB()).Length()
		require.Less(t, gap, float32(0.05), "Anchors should stay pinned together")
	})

	t.Run("joint limit holds the relative angle", func(t *testing.T) {
		w, j := pendulum()
		for i := 0; i < 100; i++ {
			w.Step(0.04, 5, 5)
		}
		lower, upper := j.Limits()
		require.GreaterOrEqual(t, j.JointAngle(), lower-0.1, "Angle should not pass the lower limit")
		require.LessOrEqual(t, j.JointAngle(), upper+0.1, "Angle should not pass the upper limit")
	})

	t.Run("body comes to rest on the ground", func(t *testing.T) {
		w := NewWorld(V(0, 10), testGround)
		listener := newRecordingListener()
		w.SetContactListener(listener)
		b := w.CreateBody(BodyDef{Name: "crate", Position: V(0, 8), Mass: 2, Inertia: 1, Shape: Box(1, 0.5), Friction: 1, Collides: true})

		for i := 0; i < 200; i++ {
			w.Step(0.04, 5, 5)
		}

		require.True(t, b.Touching(), "Crate should be touching the ground")
		require.GreaterOrEqual(t, listener.begins["crate"], 1, "Contact should begin at least once")
		require.Equal(t, listener.begins["crate"], listener.ends["crate"]+1,
			"Every bounce should end before the final contact begins")
		require.InDelta(t, 9.5, b.Position().Y, 0.05, "Crate should rest on the surface")
		require.InDelta(t, 0, b.LinearVelocity().Y, 0.05, "Crate should be at rest")
	})

	t.Run("non colliding body falls through", func(t *testing.T) {
		w := NewWorld(V(0, 10), testGround)
		b := w.CreateBody(BodyDef{Name: "ghost", Position: V(0, 9.8), Mass: 1, Inertia: 1, Shape: Box(0.5, 0.5)})
		for i := 0; i < 10; i++ {
			w.Step(0.04, 5, 5)
		}
		require.False(t, b.Touching(), "Body without collisions should never touch")
		require.Greater(t, b.Position().Y, float32(10), "Body should pass the surface")
	})
}

func TestWorldSnapshot(t *testing.T) {
	t.Run("restored world steps identically", func(t *testing.T) {
		original, _ := pendulum()
		for i := 0; i < 20; i++ {
			original.Step(0.04, 5, 5)
		}
		snapshot := original.Snapshot()

		fork, _ := pendulum()
		require.NoError(t, fork.Restore(snapshot))

		for i := 0; i < 30; i++ {
			original.Step(0.04, 5, 5)
			fork.Step(0.04, 5, 5)
		}
		for i, b := range original.Bodies() {
			other := fork.Bodies()[i]
			require.Equal(t, b.Position(), other.Position(), "Positions should match bit for bit")
			require.Equal(t, b.Angle(), other.Angle(), "Angles should match bit for bit")
			require.Equal(t, b.LinearVelocity(), other.LinearVelocity(), "Velocities should match bit for bit")
		}
		require.Equal(t, original.StepCount(), fork.StepCount(), "Step counts should match")
	})

	t.Run("truncated snapshot is rejected and world is untouched", func(t *testing.T) {
		original, _ := pendulum()
		original.Step(0.04, 5, 5)
		snapshot := original.Snapshot()

		target, _ := pendulum()
		before := target.Snapshot()
		err := target.Restore(snapshot[:len(snapshot)-3])

		require.True(t, errors.Is(err, ErrSnapshotCorrupt), "Error should be ErrSnapshotCorrupt, got %v", err)
		require.Equal(t, before, target.Snapshot(), "World should be unchanged after a failed restore")
	})

	t.Run("unknown version is rejected", func(t *testing.T) {
		w, _ := pendulum()
		snapshot := w.Snapshot()
		snapshot[4] = snapshotVersion + 1

		err := w.Restore(snapshot)

		require.True(t, errors.Is(err, ErrSnapshotVersion), "Error should be ErrSnapshotVersion, got %v", err)
	})

	t.Run("mismatched world is rejected", func(t *testing.T) {
		w, _ := pendulum()
		other := NewWorld(V(0, 10), testGround)
		other.CreateBody(BodyDef{Name: "solo", Mass: 1, Inertia: 1, Shape: Circle(1)})

		err := other.Restore(w.Snapshot())

		require.True(t, errors.Is(err, ErrSnapshotCorrupt), "Error should be ErrSnapshotCorrupt, got %v", err)
	})
}
