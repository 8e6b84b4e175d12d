// Package ast turns a data request plus table metadata into an ordered
// query AST. The AST is the single source of truth for which fields a
// response carries and in what order; columns the caller cannot see
// never enter it.
package ast

import (
	"github.com/google/uuid"

	"github.com/aethra/gridbase/internal/acl"
	"github.com/aethra/gridbase/internal/auth"
	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/meta"
	"github.com/aethra/gridbase/internal/models"
)

// Node is one field of the AST. Exactly one of the option pointers is
// set for virtual columns; plain columns carry only the Column.
type Node struct {
	Title  string
	Column models.Column

	// LinkToAnotherRecord
	Link         *models.LinkColumnOption
	RelatedModel *models.Model
	Nested       *Ast // projection for linked rows, one level deep

	// Lookup
	Lookup *LookupSpec

	// Rollup
	Rollup *RollupSpec
}

// LookupSpec is a fully resolved lookup chain. Chain holds each hop's
// link option paired with the model it lands on; Target is the concrete
// column at the end.
type LookupSpec struct {
	Chain  []LookupHop
	Target models.Column
}

// LookupHop is one traversal step of a lookup chain.
type LookupHop struct {
	Link  models.LinkColumnOption
	Model *models.Model
}

// RollupSpec aggregates a column of the linked rows.
type RollupSpec struct {
	Link         models.LinkColumnOption
	RelatedModel *models.Model
	Target       models.Column
	Function     string
}

// Ast is the ordered field list for one model.
type Ast struct {
	Model *models.Model
	Nodes []Node
}

// Titles returns the field titles in AST order.
func (a *Ast) Titles() []string {
	titles := make([]string, len(a.Nodes))
	for i, n := range a.Nodes {
		titles[i] = n.Title
	}
	return titles
}

// Builder resolves ASTs against the metadata store.
type Builder struct {
	store *meta.Store
}

// NewBuilder creates an AST builder.
func NewBuilder(store *meta.Store) *Builder {
	return &Builder{store: store}
}

// Build resolves the AST for a model. Requested fields that are
// unknown, denied, or virtual in an unsupported way are dropped
// silently; an empty request means every visible column. View metadata,
// when present, narrows and orders the default field set.
func (b *Builder) Build(model *models.Model, view *models.View, roles auth.RoleSet, params *QueryParams) (*Ast, error) {
	return b.build(model, view, roles, params, map[uuid.UUID]bool{})
}

func (b *Builder) build(model *models.Model, view *models.View, roles auth.RoleSet, params *QueryParams, visited map[uuid.UUID]bool) (*Ast, error) {
	candidates := b.candidateColumns(model, view, roles)

	var ordered []models.Column
	if params != nil && len(params.Fields) > 0 {
		byTitle := make(map[string]models.Column, len(candidates))
		for _, col := range candidates {
			byTitle[col.Title] = col
		}
		for _, title := range params.Fields {
			if col, ok := byTitle[title]; ok {
				ordered = append(ordered, col)
			}
		}
	} else {
		ordered = candidates
	}

	out := &Ast{Model: model}
	for _, col := range ordered {
		node, err := b.resolveNode(model, col, roles, params, visited)
		if err != nil {
			return nil, err
		}
		if node != nil {
			out.Nodes = append(out.Nodes, *node)
		}
	}
	return out, nil
}

// candidateColumns applies the access gate and view column settings.
func (b *Builder) candidateColumns(model *models.Model, view *models.View, roles auth.RoleSet) []models.Column {
	visible := acl.FilterColumnsByRole(model.Columns, roles)

	showSystem := view != nil && view.ShowSystemFields
	filtered := make([]models.Column, 0, len(visible))
	for _, col := range visible {
		if !showSystem && acl.IsSystemColumn(&col) && !col.IsPrimaryKey {
			continue
		}
		filtered = append(filtered, col)
	}

	if view == nil || len(view.Columns) == 0 {
		return filtered
	}

	// Per-view show/order wins over the model's column order.
	byID := make(map[uuid.UUID]models.Column, len(filtered))
	for _, col := range filtered {
		byID[col.ID] = col
	}
	ordered := make([]models.Column, 0, len(view.Columns))
	seen := make(map[uuid.UUID]bool)
	for _, vc := range view.Columns {
		col, ok := byID[vc.ColumnID]
		if !ok {
			continue
		}
		// A recorded column is governed by its Show flag either way;
		// hidden ones must not resurface through the remainder below.
		seen[col.ID] = true
		if vc.Show {
			ordered = append(ordered, col)
		}
	}
	// Columns the view never recorded stay visible, after the curated set.
	for _, col := range filtered {
		if !seen[col.ID] {
			ordered = append(ordered, col)
		}
	}
	return ordered
}

func (b *Builder) resolveNode(model *models.Model, col models.Column, roles auth.RoleSet, params *QueryParams, visited map[uuid.UUID]bool) (*Node, error) {
	node := &Node{Title: col.Title, Column: col}

	switch col.UIDT {
	case models.UITypeLinkToAnotherRecord:
		link, err := b.store.GetLinkOption(col.ID)
		if err != nil {
			return nil, err
		}
		related, err := b.store.GetModel(link.RelatedModelID)
		if err != nil {
			return nil, err
		}
		nested, err := b.buildNested(related, roles, params, col.Title)
		if err != nil {
			return nil, err
		}
		node.Link = link
		node.RelatedModel = related
		node.Nested = nested

	case models.UITypeLookup:
		spec, err := b.resolveLookup(model, col, roles, visited)
		if err != nil {
			return nil, err
		}
		node.Lookup = spec

	case models.UITypeRollup:
		opt, err := b.store.GetRollupOption(col.ID)
		if err != nil {
			return nil, err
		}
		link, err := b.store.GetLinkOption(opt.LinkColumnID)
		if err != nil {
			return nil, err
		}
		related, err := b.store.GetModel(link.RelatedModelID)
		if err != nil {
			return nil, err
		}
		target := related.ColumnByID(opt.RollupColumnID)
		if target == nil {
			return nil, apperrors.NewConfigurationError("rollup target column missing on related table")
		}
		node.Rollup = &RollupSpec{
			Link:         *link,
			RelatedModel: related,
			Target:       *target,
			Function:     opt.Function,
		}

	case models.UITypeFormula, models.UITypeBarcode, models.UITypeQrCode:
		// Rendered from the stored expression by the projector; nothing
		// to resolve against other models.
	}

	return node, nil
}

// buildNested produces the depth-one projection for a link column. The
// caller can narrow it with nested[Col][fields]; otherwise the related
// model's pk and display value are used.
func (b *Builder) buildNested(related *models.Model, roles auth.RoleSet, params *QueryParams, linkTitle string) (*Ast, error) {
	var fields []string
	if params != nil {
		fields = params.Nested[linkTitle]
	}

	if len(fields) > 0 {
		nestedParams := &QueryParams{Fields: fields}
		// Nested link columns are not expanded further; the related
		// model is projected flat one level deep.
		return b.buildFlat(related, roles, nestedParams)
	}

	out := &Ast{Model: related}
	if pk := related.PrimaryKeyColumn(); pk != nil && acl.ColumnVisible(pk, roles) {
		out.Nodes = append(out.Nodes, Node{Title: pk.Title, Column: *pk})
	}
	if dv := related.DisplayValueColumn(); dv != nil && acl.ColumnVisible(dv, roles) {
		if len(out.Nodes) == 0 || out.Nodes[0].Column.ID != dv.ID {
			out.Nodes = append(out.Nodes, Node{Title: dv.Title, Column: *dv})
		}
	}
	return out, nil
}

// buildFlat builds an AST of plain columns only, dropping virtual ones.
func (b *Builder) buildFlat(model *models.Model, roles auth.RoleSet, params *QueryParams) (*Ast, error) {
	visible := acl.FilterColumnsByRole(model.Columns, roles)
	byTitle := make(map[string]models.Column, len(visible))
	for _, col := range visible {
		byTitle[col.Title] = col
	}

	out := &Ast{Model: model}
	for _, title := range params.Fields {
		col, ok := byTitle[title]
		if !ok || col.UIDT.IsVirtual() {
			continue
		}
		out.Nodes = append(out.Nodes, Node{Title: col.Title, Column: col})
	}
	return out, nil
}

// resolveLookup follows a lookup chain until it lands on a concrete
// column. Revisiting a lookup column means the chain loops, which is
// broken metadata, not a caller error.
func (b *Builder) resolveLookup(model *models.Model, col models.Column, roles auth.RoleSet, visited map[uuid.UUID]bool) (*LookupSpec, error) {
	if visited[col.ID] {
		return nil, apperrors.NewConfigurationError("lookup chain loops through column " + col.Title)
	}
	visited[col.ID] = true

	opt, err := b.store.GetLookupOption(col.ID)
	if err != nil {
		return nil, err
	}
	link, err := b.store.GetLinkOption(opt.LinkColumnID)
	if err != nil {
		return nil, err
	}
	related, err := b.store.GetModel(link.RelatedModelID)
	if err != nil {
		return nil, err
	}
	target := related.ColumnByID(opt.LookupColumnID)
	if target == nil {
		return nil, apperrors.NewConfigurationError("lookup target column missing on related table")
	}
	if !acl.ColumnVisible(target, roles) {
		return nil, apperrors.NewConfigurationError("lookup target column is not accessible")
	}

	spec := &LookupSpec{Chain: []LookupHop{{Link: *link, Model: related}}}

	if target.UIDT == models.UITypeLookup {
		tail, err := b.resolveLookup(related, *target, roles, visited)
		if err != nil {
			return nil, err
		}
		spec.Chain = append(spec.Chain, tail.Chain...)
		spec.Target = tail.Target
		return spec, nil
	}

	spec.Target = *target
	return spec, nil
}
