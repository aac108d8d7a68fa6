// Package controlplane implements the noun-verb operations from spec §6 as
// plain Go interfaces/methods over the engine's registries — deliberately
// not standing up any HTTP/WebSocket server (§1 names the transport as an
// external collaborator). A real server binds these methods to routes;
// tests and other in-process callers can use them directly.
package controlplane

import (
	"context"

	"github.com/lumencast/engine/internal/clip"
	"github.com/lumencast/engine/internal/output"
	"github.com/lumencast/engine/internal/player"
	"github.com/lumencast/engine/internal/sequence"
	"github.com/lumencast/engine/internal/slice"
	"github.com/lumencast/engine/internal/uid"
)

// TrimRequest is the body of PUT clips/{id}/trim.
type TrimRequest struct {
	In, Out   int
	Speed     float64
	Reverse   bool
	Mode      clip.Mode
	LoopCount int
}

// OutputDef is the body of PUT outputs/{id} — enough to (re)construct and
// register a concrete output.Output; the control plane only stores the
// selector/slice/enabled bookkeeping, the caller supplies the already-built
// output.Output implementation (display, Art-Net, virtual...).
type OutputDef struct {
	Name     string
	Impl     output.Output
	FPSCap   int
	Source   string
	SliceID  string
	Disabled bool
}

// SliceDef is the body of POST slices.
type SliceDef = slice.Slice

// SequenceDef is the body of POST sequences.
type SequenceDef = sequence.Sequence

// Service implements every spec §6 operation by delegating to the
// registries a running engine already owns.
type Service struct {
	Clips     *clip.Registry
	Outputs   *output.Manager
	Slices    *slice.Manager
	Sequences *sequence.Engine
	Player    *player.Player
}

// New wires a Service to the concrete registries of a running engine.
func New(clips *clip.Registry, outputs *output.Manager, slices *slice.Manager, sequences *sequence.Engine, p *player.Player) *Service {
	return &Service{Clips: clips, Outputs: outputs, Slices: slices, Sequences: sequences, Player: p}
}

// CreateClip — POST clips.
func (s *Service) CreateClip(sourceRef string, isGenerator bool, durationFrames int) string {
	return s.Clips.CreateClip(sourceRef, isGenerator, durationFrames).ID
}

// SetTrim — PUT clips/{id}/trim.
func (s *Service) SetTrim(clipID string, req TrimRequest) error {
	return s.Clips.SetTrim(clipID, clip.TrimState{
		In: req.In, Out: req.Out, Speed: req.Speed, Reverse: req.Reverse, Mode: req.Mode,
		LoopCount: req.LoopCount,
	})
}

// AddEffect — POST clips/{id}/effects/{chain}/{idx}.
func (s *Service) AddEffect(clipID, chainType, pluginID string, index int) (string, error) {
	ei, err := s.Clips.AddEffect(clipID, chainType, pluginID, index)
	if err != nil {
		return "", err
	}
	return ei.PluginID, nil
}

// RemoveEffect — DELETE clips/{id}/effects/{chain}/{idx} (spec's table omits
// the verb explicitly but names AddEffect/RemoveEffect symmetrically in
// §4.1; exposed here for completeness).
func (s *Service) RemoveEffect(clipID, chainType string, index int) error {
	return s.Clips.RemoveEffect(clipID, chainType, index)
}

// SetParameter — PUT parameters/{uid}.
func (s *Service) SetParameter(id uid.UID, value float64) error {
	return s.Clips.ResolveAndSet(id, value)
}

// ListOutputs — GET outputs.
func (s *Service) ListOutputs() []string {
	return s.Outputs.Names()
}

// UpsertOutput — PUT outputs/{id}. Registering twice under the same name is
// rejected by the underlying manager (InUse); callers that want to replace
// an output must Unregister first.
func (s *Service) UpsertOutput(ctx context.Context, def OutputDef) error {
	if err := s.Outputs.Register(ctx, def.Name, def.Impl, def.FPSCap); err != nil {
		return err
	}
	if def.Source != "" {
		if err := s.Outputs.SetSource(def.Name, def.Source); err != nil {
			return err
		}
	}
	if def.SliceID != "" {
		if err := s.Outputs.SetSlice(def.Name, def.SliceID); err != nil {
			return err
		}
	}
	if def.Disabled {
		return s.Outputs.Disable(def.Name)
	}
	return nil
}

// SetOutputSource — PUT outputs/{id}/source.
func (s *Service) SetOutputSource(name, selector string) error {
	return s.Outputs.SetSource(name, selector)
}

// SetOutputSlice — PUT outputs/{id}/slice.
func (s *Service) SetOutputSlice(name, sliceID string) error {
	return s.Outputs.SetSlice(name, sliceID)
}

// EnableOutput / DisableOutput — POST outputs/{id}/enable,disable.
func (s *Service) EnableOutput(name string) error  { return s.Outputs.Enable(name) }
func (s *Service) DisableOutput(name string) error { return s.Outputs.Disable(name) }

// ListSlices — GET slices.
func (s *Service) ListSlices() []string {
	return s.Slices.Names()
}

// GetSlice — GET slices/{id}.
func (s *Service) GetSlice(sliceID string) (*slice.Slice, bool) {
	return s.Slices.Get(sliceID)
}

// CreateSlice / UpdateSlice — POST/PUT slices.
func (s *Service) CreateSlice(def SliceDef) error {
	return s.Slices.Register(&def)
}

// DeleteSlice — DELETE slices/{id}. The in-use check counts every
// registered output whose source references the slice, enabled or not.
func (s *Service) DeleteSlice(sliceID string) error {
	return s.Slices.Delete(sliceID, s.sliceInUse)
}

func (s *Service) sliceInUse(sliceID string) bool {
	for _, name := range s.Outputs.Names() {
		_, sl, err := s.Outputs.Source(name)
		if err == nil && sl == sliceID {
			return true
		}
	}
	return false
}

// CreateSequence / UpdateSequence — POST/PUT sequences.
func (s *Service) CreateSequence(def SequenceDef) {
	s.Sequences.Register(&def)
}

// DeleteSequence — DELETE sequences/{id}.
func (s *Service) DeleteSequence(id string) {
	s.Sequences.Remove(id)
}

// SetCurrentClip is not in spec §6's table directly but backs "clip:current"
// in the source selector grammar — some control-plane action (e.g.
// selecting a clip in the UI) must set it.
func (s *Service) SetCurrentClip(clipID string) {
	if s.Player != nil {
		s.Player.SetCurrentClip(clipID)
	}
}
