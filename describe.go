package plist

import (
	"fmt"
	"strings"
)

type describeFrame struct {
	label   string
	value   Value
	depth   int
	closing bool
}

// Describe prints v as an indented tree with the variant of every node,
// e.g. `[name]: string(Sword)`.
func Describe(v Value) string {
	builder := &strings.Builder{}
	stack := []describeFrame{{value: v}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		builder.WriteString(strings.Repeat("\t", f.depth))
		if f.closing {
			builder.WriteString("}\n")
			continue
		}
		if f.label != "" {
			fmt.Fprintf(builder, "[%s]: ", f.label)
		}
		switch pval := f.value.(type) {
		case Array:
			builder.WriteString("array{\n")
			stack = append(stack, describeFrame{depth: f.depth, closing: true})
			for i := len(pval) - 1; i >= 0; i-- {
				stack = append(stack, describeFrame{label: fmt.Sprint(i), value: pval[i], depth: f.depth + 1})
			}
		case *Dictionary:
			builder.WriteString("dict{\n")
			stack = append(stack, describeFrame{depth: f.depth, closing: true})
			for i := len(pval.keys) - 1; i >= 0; i-- {
				stack = append(stack, describeFrame{label: pval.keys[i], value: pval.values[i], depth: f.depth + 1})
			}
		default:
			builder.WriteString(describeLeaf(pval))
			builder.WriteByte('\n')
		}
	}
	return builder.String()
}

func describeLeaf(v Value) string {
	switch pval := v.(type) {
	case String:
		return fmt.Sprintf("string(%v)", string(pval))
	case Integer:
		if pval.Signed() {
			return fmt.Sprintf("int64(%v)", pval)
		}
		return fmt.Sprintf("uint64(%v)", pval)
	case Real:
		return fmt.Sprintf("float64(%v)", float64(pval))
	case Boolean:
		return fmt.Sprintf("bool(%v)", bool(pval))
	case Date:
		if !pval.Valid() {
			return fmt.Sprintf("time(invalid %v)", float64(pval))
		}
		return fmt.Sprintf("time(%v)", pval.Time())
	case Data:
		return fmt.Sprintf("[]byte(%x)", []byte(pval))
	case UID:
		return fmt.Sprintf("UID(%d)", uint64(pval))
	}
	return fmt.Sprintf("unknown(%v)", v)
}
