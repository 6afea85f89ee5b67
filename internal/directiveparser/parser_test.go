package directiveparser

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		directive string
		want      Directive
		wantErr   bool
	}{
		{
			name:      "Empty",
			directive: "inject:",
			wantErr:   true,
		},
		{
			name:      "Unknown",
			directive: "inject:frobnicate",
			wantErr:   true,
		},
		{
			name:      "Component",
			directive: "inject:component",
			want:      &DirectiveComponent{},
		},
		{
			name:      "ComponentWithScope",
			directive: "inject:component scope=AppScope",
			want:      &DirectiveComponent{Scope: "AppScope"},
		},
		{
			name:      "Provides",
			directive: "inject:provides",
			want:      &DirectiveProvides{},
		},
		{
			name:      "ProvidesIntoSet",
			directive: "inject:provides into=set",
			want:      &DirectiveProvides{IntoSet: true},
		},
		{
			name:      "ProvidesIntoSetMulti",
			directive: "inject:provides into=set multi",
			want:      &DirectiveProvides{IntoSet: true, Multi: true},
		},
		{
			name:      "ProvidesIntoMap",
			directive: "inject:provides into=map",
			want:      &DirectiveProvides{IntoMap: true},
		},
		{
			name:      "ProvidesMultiWithoutContainer",
			directive: "inject:provides multi",
			wantErr:   true,
		},
		{
			name:      "ProvidesScopedQualified",
			directive: "inject:provides scope=AppScope qualifier=primary",
			want:      &DirectiveProvides{Scope: "AppScope", Qualifier: "primary"},
		},
		{
			name:      "ProvidesParamQualifiers",
			directive: "inject:provides qualifiers=db:primary,cache:shared",
			want: &DirectiveProvides{Qualifiers: []*ParamQualifier{
				{Param: "db", Qualifier: "primary"},
				{Param: "cache", Qualifier: "shared"},
			}},
		},
		{
			name:      "ProvidesOptionalParams",
			directive: "inject:provides optional=logger,tracer",
			want:      &DirectiveProvides{Optional: []string{"logger", "tracer"}},
		},
		{
			name:      "Provider",
			directive: "inject:provider",
			want:      &DirectiveProvider{Declared: true},
		},
		{
			name:      "ProviderQualified",
			directive: "inject:provider qualifier=replica",
			want:      &DirectiveProvider{Declared: true, Qualifier: "replica"},
		},
		{
			name:      "Inject",
			directive: "inject:inject",
			want:      &DirectiveInject{},
		},
		{
			name:      "InjectAssisted",
			directive: "inject:inject assisted=userID,name",
			want:      &DirectiveInject{Assisted: []string{"userID", "name"}},
		},
		{
			name:      "InjectScopedAssisted",
			directive: "inject:inject scope=AppScope assisted=userID",
			want:      &DirectiveInject{Scope: "AppScope", Assisted: []string{"userID"}},
		},
		{
			name:      "Singleton",
			directive: "inject:singleton",
			want:      &DirectiveSingleton{Declared: true},
		},
		{
			name:      "SingletonQualified",
			directive: "inject:singleton qualifier=noop",
			want:      &DirectiveSingleton{Declared: true, Qualifier: "noop"},
		},
		{
			name:      "Factory",
			directive: "inject:factory",
			want:      &DirectiveFactory{Declared: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.directive)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectiveString(t *testing.T) {
	tests := []string{
		"inject:component scope=AppScope",
		"inject:provides into=set multi scope=AppScope qualifier=primary",
		"inject:provides qualifiers=db:primary optional=logger",
		"inject:provider qualifier=replica",
		"inject:inject scope=AppScope assisted=userID,name",
		"inject:singleton qualifier=noop",
		"inject:factory",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			directive, err := Parse(text)
			assert.NoError(t, err)
			assert.Equal(t, text, directive.String())
		})
	}
}
