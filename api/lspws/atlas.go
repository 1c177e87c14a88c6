package lspws

import (
	"github.com/polydawn/refmt/obj/atlas"
	"github.com/warpfork/go-errcat"

	"github.com/polydawn/lspws/api"
)

var Atlas = atlas.MustBuild(
	atlas.BuildEntry(Event{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Event_Log{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Event_Result{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Error{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(api.Workspace{}).StructMap().Autogenerate().Complete(),
	api.GitURI_AtlasEntry,
)

/*
	Stash an error in the result in its serial form.
	Errors without an errcat category are reported as internal.
*/
func (r *Event_Result) SetError(err error) {
	if err == nil {
		r.Error = nil
		return
	}
	category, ok := errcat.Category(err).(ErrorCategory)
	if !ok {
		category = ErrInternal
	}
	msg := err.Error()
	if e, ok := err.(errcat.Error); ok {
		msg = e.Message()
	}
	r.Error = &Error{Category: category, Message: msg}
}
