package listmgr

import (
	"encoding/json"
	"fmt"

	"github.com/robinhood-fs/rbh/internal/attrs"
	"github.com/robinhood-fs/rbh/internal/ids"
)

// statusEnvelope is the JSON shape stored in main_table.status_json: one
// string value per installed status manager's status attribute.
type statusEnvelope map[string]string

// smInfoEnvelope is the JSON shape stored in annex_table.sminfo_json.
type smInfoEnvelope map[string]json.RawMessage

func valueToJSON(v attrs.Value) (json.RawMessage, error) {
	var payload any
	switch v.Kind {
	case attrs.KindText:
		payload = v.Str
	case attrs.KindInt, attrs.KindBigint:
		payload = v.Int
	case attrs.KindUint, attrs.KindBiguint:
		payload = v.Uint
	case attrs.KindBool:
		payload = v.Bool
	default:
		return nil, fmt.Errorf("listmgr: unsupported sm-info value kind %v", v.Kind)
	}
	return json.Marshal(payload)
}

func valueFromJSON(dbType attrs.DBType, raw json.RawMessage) (attrs.Value, error) {
	switch dbType {
	case attrs.DBText, attrs.DBEnumString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return attrs.Value{}, err
		}
		return attrs.StrValue(s), nil
	case attrs.DBInt, attrs.DBShort, attrs.DBBigint:
		var i int64
		if err := json.Unmarshal(raw, &i); err != nil {
			return attrs.Value{}, err
		}
		return attrs.BigintValue(i), nil
	case attrs.DBUint, attrs.DBUshort, attrs.DBBiguint:
		var u uint64
		if err := json.Unmarshal(raw, &u); err != nil {
			return attrs.Value{}, err
		}
		return attrs.BiguintValue(u), nil
	case attrs.DBBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return attrs.Value{}, err
		}
		return attrs.BoolValue(b), nil
	default:
		return attrs.Value{}, fmt.Errorf("listmgr: unsupported sm-info db type %v", dbType)
	}
}

// row is the flattened, column-aligned view of an AttrSet used to bind
// and scan main_table/annex_table/names_table rows.
type row struct {
	ID ids.ID

	size, blocks           *int64
	mode, uid, gid, nlink  *int64
	dircount               *int64
	lastAccess, lastMod    *int64
	mdUpdate               *int64
	typ                    *string
	status                 statusEnvelope

	creationTime *int64
	link         *string
	stripeInfo   *attrs.StripeInfo
	stripeItems  attrs.StripeItems
	smInfo       smInfoEnvelope

	parentID    ids.ID
	name        *string
	depth       *int64
	pathUpdate  *int64
}

// encodeRow projects a into the flattened row representation, erroring
// if a read-only bit is set (insert/update must reject that).
func encodeRow(id ids.ID, a *attrs.AttrSet) (*row, error) {
	// Generated fields (fullpath, invalid) are simply never persisted;
	// only a genuinely read-only bit in the mask is a caller error.
	if ro := attrs.FieldsForFlag(a.Mask, attrs.FlagReadOnly); !ro.IsNull() {
		return nil, newErr(ReadOnlyAttr, "encodeRow", fmt.Errorf("mask sets read-only bits: %v", ro.Indices()))
	}
	r := &row{ID: id, status: statusEnvelope{}, smInfo: smInfoEnvelope{}}

	getInt := func(idx attrs.AttrIndex) *int64 {
		v, ok := a.Get(idx)
		if !ok {
			return nil
		}
		switch v.Kind {
		case attrs.KindUint, attrs.KindBiguint:
			i := int64(v.Uint)
			return &i
		default:
			i := v.Int
			return &i
		}
	}
	getStr := func(idx attrs.AttrIndex) *string {
		v, ok := a.Get(idx)
		if !ok {
			return nil
		}
		return &v.Str
	}

	r.size = getInt(attrs.ATTR_size)
	r.blocks = getInt(attrs.ATTR_blocks)
	r.mode = getInt(attrs.ATTR_mode)
	r.uid = getInt(attrs.ATTR_uid)
	r.gid = getInt(attrs.ATTR_gid)
	r.nlink = getInt(attrs.ATTR_nlink)
	r.dircount = getInt(attrs.ATTR_dircount)
	r.lastAccess = getInt(attrs.ATTR_last_access)
	r.lastMod = getInt(attrs.ATTR_last_mod)
	r.mdUpdate = getInt(attrs.ATTR_md_update)
	r.typ = getStr(attrs.ATTR_type)

	r.creationTime = getInt(attrs.ATTR_creation_time)
	r.link = getStr(attrs.ATTR_link)
	if v, ok := a.Get(attrs.ATTR_stripe_info); ok {
		r.stripeInfo = v.Stripe
	}
	if v, ok := a.Get(attrs.ATTR_stripe_items); ok {
		r.stripeItems = v.Items
	}

	r.parentID = func() ids.ID {
		if v, ok := a.Get(attrs.ATTR_parent_id); ok {
			return v.ID
		}
		return nil
	}()
	r.name = getStr(attrs.ATTR_name)
	r.depth = getInt(attrs.ATTR_depth)
	r.pathUpdate = getInt(attrs.ATTR_path_update)

	for _, idx := range a.Mask.Indices() {
		meta, ok := attrs.Meta(idx)
		if !ok {
			continue
		}
		switch meta.Plane {
		case attrs.PlaneStatus:
			v, _ := a.Get(idx)
			r.status[meta.Name] = v.Str
		case attrs.PlaneSMInfo:
			v, _ := a.Get(idx)
			raw, err := valueToJSON(v)
			if err != nil {
				return nil, err
			}
			r.smInfo[meta.Name] = raw
		}
	}

	return r, nil
}

// decodeRow reconstructs an AttrSet from a stored row, restricted to the
// bits set in want that also have a non-NULL stored value.
func decodeRow(r *row, want attrs.AttrMask) (*attrs.AttrSet, error) {
	out := attrs.NewAttrSet()
	setIfInt := func(idx attrs.AttrIndex, v *int64) {
		if v == nil || !want.Test(idx) {
			return
		}
		meta, _ := attrs.Meta(idx)
		if meta.DBType == attrs.DBUint || meta.DBType == attrs.DBBiguint || meta.DBType == attrs.DBUshort {
			out.Set(idx, attrs.UintValue(uint64(*v)))
		} else {
			out.Set(idx, attrs.IntValue(*v))
		}
	}
	setIfStr := func(idx attrs.AttrIndex, v *string) {
		if v == nil || !want.Test(idx) {
			return
		}
		out.Set(idx, attrs.StrValue(*v))
	}

	setIfInt(attrs.ATTR_size, r.size)
	setIfInt(attrs.ATTR_blocks, r.blocks)
	setIfInt(attrs.ATTR_mode, r.mode)
	setIfInt(attrs.ATTR_uid, r.uid)
	setIfInt(attrs.ATTR_gid, r.gid)
	setIfInt(attrs.ATTR_nlink, r.nlink)
	setIfInt(attrs.ATTR_dircount, r.dircount)
	setIfInt(attrs.ATTR_last_access, r.lastAccess)
	setIfInt(attrs.ATTR_last_mod, r.lastMod)
	setIfInt(attrs.ATTR_md_update, r.mdUpdate)
	setIfStr(attrs.ATTR_type, r.typ)

	setIfInt(attrs.ATTR_creation_time, r.creationTime)
	setIfStr(attrs.ATTR_link, r.link)
	if r.stripeInfo != nil && want.Test(attrs.ATTR_stripe_info) {
		out.Set(attrs.ATTR_stripe_info, attrs.Value{Kind: attrs.KindStripeInfo, Stripe: r.stripeInfo})
	}
	if r.stripeItems != nil && want.Test(attrs.ATTR_stripe_items) {
		out.Set(attrs.ATTR_stripe_items, attrs.Value{Kind: attrs.KindStripeItems, Items: r.stripeItems})
	}

	if r.parentID != nil && want.Test(attrs.ATTR_parent_id) {
		out.Set(attrs.ATTR_parent_id, attrs.EntryIDValue(r.parentID))
	}
	setIfStr(attrs.ATTR_name, r.name)
	setIfInt(attrs.ATTR_depth, r.depth)
	setIfInt(attrs.ATTR_path_update, r.pathUpdate)

	for name, val := range r.status {
		idx, ok := attrs.ByName(name)
		if !ok || !want.Test(idx) {
			continue
		}
		out.Set(idx, attrs.StrValue(val))
	}
	for name, raw := range r.smInfo {
		idx, ok := attrs.ByName(name)
		if !ok || !want.Test(idx) {
			continue
		}
		meta, _ := attrs.Meta(idx)
		v, err := valueFromJSON(meta.DBType, raw)
		if err != nil {
			return nil, err
		}
		out.Set(idx, v)
	}

	return out, nil
}
