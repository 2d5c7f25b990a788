package importer

import (
	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/model"
)

// API is the mutation surface ApplyUpdates works through. Template is empty
// for the project view.
type API interface {
	HasPlugin(id string) bool
	SetPlugin(data catalog.PluginData) error
	ClearPlugin(id string) error

	ComponentDefinition(ref model.ComponentRef) (model.Definition, bool)
	HasComponentConfig(ref model.ComponentRef, configID string) bool
	SetComponent(data catalog.ComponentData) error
	ClearComponent(ref model.ComponentRef) error
	ResetComponentConfig(ref model.ComponentRef, configID string) error
	ClearComponentConfig(ref model.ComponentRef, configID string) error

	HasBinding(template, id string) bool
	ClearBinding(template, id string) error

	HasExport(template string, kind model.ExportKind, exportID string) bool
	ClearExport(template string, kind model.ExportKind, exportID string) error
}

type projectAPI struct {
	project *model.Project
}

// ProjectAPI binds the mutation API to a project.
func ProjectAPI(project *model.Project) API {
	return &projectAPI{project: project}
}

func (a *projectAPI) HasPlugin(id string) bool { return a.project.HasPlugin(id) }

func (a *projectAPI) SetPlugin(data catalog.PluginData) error {
	_, err := a.project.SetPlugin(data)
	return err
}

func (a *projectAPI) ClearPlugin(id string) error { return a.project.ClearPlugin(id) }

func (a *projectAPI) ComponentDefinition(ref model.ComponentRef) (model.Definition, bool) {
	component, err := a.project.LookupComponent(ref)
	if err != nil {
		return model.Definition{}, false
	}
	return component.Definition(), true
}

func (a *projectAPI) HasComponentConfig(ref model.ComponentRef, configID string) bool {
	component, err := a.project.LookupComponent(ref)
	if err != nil {
		return false
	}
	_, ok := component.ConfigValue(configID)
	return ok
}

// SetComponent creates a project component from a catalog entry or brings an
// existing one in line with it. A component switching definition is
// recreated at its position.
func (a *projectAPI) SetComponent(data catalog.ComponentData) error {
	definition := model.PluginDefinition(data.Plugin)
	component, err := a.project.Component(data.ID)
	if err == nil && component.Definition() != definition {
		position := component.Position()
		if err := a.project.ClearComponent(data.ID); err != nil {
			return err
		}
		if component, err = a.project.SetComponent(data.ID, definition, position.X, position.Y); err != nil {
			return err
		}
	} else if err != nil {
		if component, err = a.project.SetComponent(data.ID, definition, 0, 0); err != nil {
			return err
		}
	}

	for _, key := range catalog.SortedKeys(data.Config) {
		if err := a.project.ConfigureComponent(data.ID, key, data.Config[key]); err != nil {
			return err
		}
	}
	for key := range component.Config() {
		if _, ok := data.Config[key]; ok {
			continue
		}
		if err := a.project.ResetComponentConfig(data.ID, key); err != nil {
			if err := a.project.ClearComponentConfig(data.ID, key); err != nil {
				return err
			}
		}
	}
	return a.project.SetComponentExternal(data.ID, data.External)
}

func (a *projectAPI) ClearComponent(ref model.ComponentRef) error {
	view, err := a.project.ViewOf(ref.Template)
	if err != nil {
		return err
	}
	return view.ClearComponent(ref.ID)
}

func (a *projectAPI) ResetComponentConfig(ref model.ComponentRef, configID string) error {
	view, err := a.project.ViewOf(ref.Template)
	if err != nil {
		return err
	}
	return view.ResetComponentConfig(ref.ID, configID)
}

func (a *projectAPI) ClearComponentConfig(ref model.ComponentRef, configID string) error {
	view, err := a.project.ViewOf(ref.Template)
	if err != nil {
		return err
	}
	return view.ClearComponentConfig(ref.ID, configID)
}

func (a *projectAPI) HasBinding(template, id string) bool {
	view, err := a.project.ViewOf(template)
	if err != nil {
		return false
	}
	return view.HasBinding(id)
}

func (a *projectAPI) ClearBinding(template, id string) error {
	view, err := a.project.ViewOf(template)
	if err != nil {
		return err
	}
	return view.ClearBinding(id)
}

func (a *projectAPI) HasExport(template string, kind model.ExportKind, exportID string) bool {
	t, err := a.project.Template(template)
	if err != nil {
		return false
	}
	if kind == model.ExportMember {
		_, ok := t.MemberExport(exportID)
		return ok
	}
	_, ok := t.ConfigExport(exportID)
	return ok
}

func (a *projectAPI) ClearExport(template string, kind model.ExportKind, exportID string) error {
	t, err := a.project.Template(template)
	if err != nil {
		return err
	}
	return t.ClearExport(kind, exportID)
}
