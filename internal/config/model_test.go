package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	t.Run("later installation overrides earlier", func(t *testing.T) {
		dst := NewModel()
		dst.Installations["eclipse"] = &Installation{Name: "eclipse", Home: "/old"}
		src := NewModel()
		src.Installations["eclipse"] = &Installation{Name: "eclipse", Home: "/new"}

		require.NoError(t, Merge(dst, src))
		require.Equal(t, "/new", dst.Installations["eclipse"].Home)
	})

	t.Run("duplicate step is rejected", func(t *testing.T) {
		dst := NewModel()
		dst.Steps = []*Step{{Name: "build", Installation: "eclipse"}}
		src := NewModel()
		src.Steps = []*Step{{Name: "build", Installation: "other"}}

		err := Merge(dst, src)
		require.Error(t, err)
		require.Contains(t, err.Error(), `step "build" is declared more than once`)
	})

	t.Run("nil source is a no-op", func(t *testing.T) {
		dst := NewModel()
		require.NoError(t, Merge(dst, nil))
		require.Empty(t, dst.Installations)
	})

	t.Run("reporter is replaced", func(t *testing.T) {
		dst := NewModel()
		dst.Reporter = &Reporter{URL: "http://a"}
		src := NewModel()
		src.Reporter = &Reporter{URL: "http://b"}
		require.NoError(t, Merge(dst, src))
		require.Equal(t, "http://b", dst.Reporter.URL)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		model   func() *Model
		wantErr string
	}{
		{
			name: "valid",
			model: func() *Model {
				m := NewModel()
				m.Installations["e"] = &Installation{Name: "e", Home: "/opt/e"}
				m.Nodes["n"] = &Node{Name: "n", Platform: PlatformWindows}
				m.Steps = []*Step{{Name: "s", Installation: "missing-is-fine-until-run"}}
				return m
			},
		},
		{
			name: "blank home",
			model: func() *Model {
				m := NewModel()
				m.Installations["e"] = &Installation{Name: "e", Home: "  "}
				return m
			},
			wantErr: `installation "e": home is required`,
		},
		{
			name: "unknown platform",
			model: func() *Model {
				m := NewModel()
				m.Nodes["n"] = &Node{Name: "n", Platform: "amiga"}
				return m
			},
			wantErr: `unknown platform "amiga"`,
		},
		{
			name: "step without installation",
			model: func() *Model {
				m := NewModel()
				m.Steps = []*Step{{Name: "s"}}
				return m
			},
			wantErr: `step "s": installation is required`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model().Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type stubLoader struct {
	model *Model
	exts  []string
}

func (s *stubLoader) Load(ctx context.Context, paths ...string) (*Model, error) {
	return s.model, nil
}

func (s *stubLoader) Extensions() []string { return s.exts }

func TestLoaders(t *testing.T) {
	a := NewModel()
	a.Installations["a"] = &Installation{Name: "a", Home: "/a"}
	b := NewModel()
	b.Installations["b"] = &Installation{Name: "b", Home: "/b"}
	b.Steps = []*Step{{Name: "build", Installation: "a"}}

	ls := Loaders{&stubLoader{model: a, exts: []string{".hcl"}}, &stubLoader{model: b, exts: []string{".yaml", ".yml"}}}

	m, err := ls.Load(context.Background(), "ignored")
	require.NoError(t, err)
	require.Len(t, m.Installations, 2)
	require.NotNil(t, m.Step("build"))
	require.Nil(t, m.Step("nope"))
	require.Equal(t, []string{".hcl", ".yaml", ".yml"}, ls.Extensions())
}
