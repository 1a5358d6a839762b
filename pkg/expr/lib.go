package expr

import (
	"path"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

type lib struct{}

func (lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		ext.Math(),
		ext.Strings(),
		ext.Lists(),

		// `pathBase` returns the last element of the path.
		// Example: pathBase(exe) == "java".
		cel.Function("pathBase",
			cel.Overload("path_base", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathBase", path.Base)),
			),
		),

		// `pathDir` returns all but the last element of the path.
		// Example: pathDir(exe).startsWith("/opt/").
		cel.Function("pathDir",
			cel.Overload("path_dir", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathDir", path.Dir)),
			),
		),

		// `pathExt` returns the extension of the path.
		// Example: args.exists(a, pathExt(a) == ".py").
		cel.Function("pathExt",
			cel.Overload("path_ext", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathExt", path.Ext)),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

func stringFunc(name string, fn func(string) string) func(ref.Val) ref.Val {
	return func(val ref.Val) ref.Val {
		s, ok := val.(types.String)
		if !ok {
			return types.NewErr("%s: invalid string value", name)
		}

		return types.String(fn(string(s)))
	}
}
