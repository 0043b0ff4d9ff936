package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// TensorDef declares one state tensor.
type TensorDef struct {
	Name  string
	Shape []int
	Data  []float64 // nil means zero-filled
	Param bool
}

// Definition declares one plan.
type Definition struct {
	Name        string
	Description string
	Tags        []string
	State       []TensorDef
	Nested      []string
	Reads       int
	Pos         token.Pos
}

// Manifest is the set of plans declared in one CUE instance, in
// declaration order.
type Manifest struct {
	Plans     []Definition
	FileCount int
}

// Plan returns the definition named name.
func (m *Manifest) Plan(name string) (Definition, bool) {
	for _, d := range m.Plans {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Load reads every .cue file in dir as one CUE instance.
func Load(dir string) (*Manifest, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing manifest directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	m, err := decode(value)
	if err != nil {
		return nil, err
	}
	m.FileCount = len(files)
	return m, nil
}

// LoadString compiles a manifest from source. filename is used in
// positions only.
func LoadString(filename, src string) (*Manifest, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	m, err := decode(value)
	if err != nil {
		return nil, err
	}
	m.FileCount = 1
	return m, nil
}

func decode(value cue.Value) (*Manifest, error) {
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err), Pos: value.Pos()}
	}

	plansVal := value.LookupPath(cue.ParsePath("plan"))
	if !plansVal.Exists() {
		return nil, &LoadError{Code: ErrCodeNoPlans, Message: "no plans declared"}
	}
	iter, err := plansVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating plans: %v", err), Pos: plansVal.Pos()}
	}

	m := &Manifest{}
	for iter.Next() {
		def, err := decodePlan(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		m.Plans = append(m.Plans, def)
	}
	if len(m.Plans) == 0 {
		return nil, &LoadError{Code: ErrCodeNoPlans, Message: "no plans declared"}
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodePlan(name string, v cue.Value) (Definition, error) {
	def := Definition{Name: name, Reads: 1, Pos: v.Pos()}

	if d := v.LookupPath(cue.ParsePath("description")); d.Exists() {
		s, err := d.String()
		if err != nil {
			return def, fieldError(d, "plan.%s.description must be a string", name)
		}
		def.Description = s
	}
	if t := v.LookupPath(cue.ParsePath("tags")); t.Exists() {
		if err := t.Decode(&def.Tags); err != nil {
			return def, fieldError(t, "plan.%s.tags must be a list of strings", name)
		}
	}
	if n := v.LookupPath(cue.ParsePath("nested")); n.Exists() {
		if err := n.Decode(&def.Nested); err != nil {
			return def, fieldError(n, "plan.%s.nested must be a list of plan names", name)
		}
	}
	if r := v.LookupPath(cue.ParsePath("reads")); r.Exists() {
		n, err := r.Int64()
		if err != nil || n < 1 {
			return def, fieldError(r, "plan.%s.reads must be a positive integer", name)
		}
		def.Reads = int(n)
	}

	if s := v.LookupPath(cue.ParsePath("state")); s.Exists() {
		iter, err := s.Fields()
		if err != nil {
			return def, fieldError(s, "plan.%s.state must be a struct", name)
		}
		for iter.Next() {
			td, err := decodeTensor(name, iter.Label(), iter.Value())
			if err != nil {
				return def, err
			}
			def.State = append(def.State, td)
		}
	}
	return def, nil
}

func decodeTensor(planName, name string, v cue.Value) (TensorDef, error) {
	td := TensorDef{Name: name}
	where := fmt.Sprintf("plan.%s.state.%s", planName, name)

	shape := v.LookupPath(cue.ParsePath("shape"))
	if !shape.Exists() {
		return td, &LoadError{Code: ErrCodeInvalidState, Message: where + ": shape is required", Pos: v.Pos()}
	}
	if err := shape.Decode(&td.Shape); err != nil {
		return td, &LoadError{Code: ErrCodeInvalidState, Message: where + ": shape must be a list of integers", Pos: shape.Pos()}
	}
	numel := 1
	for _, d := range td.Shape {
		if d < 0 {
			return td, &LoadError{Code: ErrCodeInvalidState, Message: fmt.Sprintf("%s: negative dimension %d", where, d), Pos: shape.Pos()}
		}
		numel *= d
	}

	if data := v.LookupPath(cue.ParsePath("data")); data.Exists() {
		if err := data.Decode(&td.Data); err != nil {
			return td, &LoadError{Code: ErrCodeInvalidState, Message: where + ": data must be a list of numbers", Pos: data.Pos()}
		}
		if len(td.Data) != numel {
			return td, &LoadError{
				Code:    ErrCodeInvalidState,
				Message: fmt.Sprintf("%s: shape %v wants %d values, got %d", where, td.Shape, numel, len(td.Data)),
				Pos:     data.Pos(),
			}
		}
	}

	if p := v.LookupPath(cue.ParsePath("param")); p.Exists() {
		b, err := p.Bool()
		if err != nil {
			return td, &LoadError{Code: ErrCodeInvalidState, Message: where + ": param must be a bool", Pos: p.Pos()}
		}
		td.Param = b
	}
	return td, nil
}

func fieldError(v cue.Value, format string, args ...any) *LoadError {
	return &LoadError{Code: ErrCodeInvalidField, Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
}

// validate checks nested references and rejects cycles.
func validate(m *Manifest) error {
	byName := make(map[string]Definition, len(m.Plans))
	for _, d := range m.Plans {
		byName[d.Name] = d
	}
	for _, d := range m.Plans {
		for _, n := range d.Nested {
			if _, ok := byName[n]; !ok {
				return &LoadError{Code: ErrCodeUnknownPlan, Message: fmt.Sprintf("plan %s nests undeclared plan %q", d.Name, n), Pos: d.Pos}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(m.Plans))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch marks[name] {
		case done:
			return nil
		case visiting:
			return &LoadError{Code: ErrCodeCycle, Message: fmt.Sprintf("plans nest each other: %v", append(path, name)), Pos: byName[name].Pos}
		}
		marks[name] = visiting
		for _, n := range byName[name].Nested {
			if err := visit(n, append(path, name)); err != nil {
				return err
			}
		}
		marks[name] = done
		return nil
	}
	for _, d := range m.Plans {
		if err := visit(d.Name, nil); err != nil {
			return err
		}
	}
	return nil
}
