package domain

import "sort"

// Deep copies. Reconciliation and the edit buffer both rely on clones so a
// transform never mutates an object the caller still holds.

func (r Resource) Clone() Resource { return r }

func (g Gate) Clone() Gate {
	out := g
	if g.Items != nil {
		out.Items = make([]GateItem, len(g.Items))
		copy(out.Items, g.Items)
	}
	if g.Payload != nil {
		out.Payload = clonePayload(g.Payload)
	}
	return out
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = clonePayload(vv)
		case []any:
			s := make([]any, len(vv))
			for i, e := range vv {
				if m, ok := e.(map[string]any); ok {
					s[i] = clonePayload(m)
				} else {
					s[i] = e
				}
			}
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}

func (t Task) Clone() Task {
	out := t
	if t.Resources != nil {
		out.Resources = make([]Resource, len(t.Resources))
		copy(out.Resources, t.Resources)
	}
	return out
}

func (s Stage) Clone() Stage {
	out := s
	out.Gate = s.Gate.Clone()
	if s.Tasks != nil {
		out.Tasks = make([]Task, len(s.Tasks))
		for i, t := range s.Tasks {
			out.Tasks[i] = t.Clone()
		}
	}
	return out
}

func (p Project) Clone() Project {
	out := p
	if p.Stages != nil {
		out.Stages = make([]Stage, len(p.Stages))
		for i, s := range p.Stages {
			out.Stages[i] = s.Clone()
		}
	}
	if p.Resources != nil {
		out.Resources = make([]Resource, len(p.Resources))
		copy(out.Resources, p.Resources)
	}
	if p.Activity != nil {
		out.Activity = make([]ActivityEntry, len(p.Activity))
		copy(out.Activity, p.Activity)
	}
	return out
}

func (a AnnotatedProject) Clone() AnnotatedProject {
	out := a
	out.Project = a.Project.Clone()
	if a.DeletionRequestDetails != nil {
		out.DeletionRequestDetails = make([]RequestDetail, len(a.DeletionRequestDetails))
		copy(out.DeletionRequestDetails, a.DeletionRequestDetails)
	}
	return out
}

// SortStages orders stages by their order field, ties broken by array position.
func (p *Project) SortStages() {
	sort.SliceStable(p.Stages, func(i, j int) bool {
		return p.Stages[i].Order < p.Stages[j].Order
	})
}

// FindStage returns a pointer into the project's stage slice, or nil.
func (p *Project) FindStage(stageID string) *Stage {
	for i := range p.Stages {
		if p.Stages[i].ID == stageID {
			return &p.Stages[i]
		}
	}
	return nil
}

// FindTask returns the stage and task for the given ids, or nils.
func (p *Project) FindTask(stageID, taskID string) (*Stage, *Task) {
	s := p.FindStage(stageID)
	if s == nil {
		return nil, nil
	}
	for i := range s.Tasks {
		if s.Tasks[i].ID == taskID {
			return s, &s.Tasks[i]
		}
	}
	return s, nil
}

// RemoveStage deletes a stage by id, reporting whether it was present.
func (p *Project) RemoveStage(stageID string) bool {
	for i := range p.Stages {
		if p.Stages[i].ID == stageID {
			p.Stages = append(p.Stages[:i], p.Stages[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveTask deletes a task by id from the named stage.
func (p *Project) RemoveTask(stageID, taskID string) bool {
	s := p.FindStage(stageID)
	if s == nil {
		return false
	}
	for i := range s.Tasks {
		if s.Tasks[i].ID == taskID {
			s.Tasks = append(s.Tasks[:i], s.Tasks[i+1:]...)
			return true
		}
	}
	return false
}
