package toolchain

import (
	"context"

	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// PackageSign signs a package in place with a keystore key.
type PackageSign struct {
	Runner process.Runner
	Tool   string
	// Java is set when Tool is a jar that must be launched with "java -jar".
	Java     string
	Keystore string
	Password string
	Alias    string
	Package  string
}

func (s *PackageSign) Name() string { return "PackageSign" }

func (s *PackageSign) Execute(ctx context.Context, sink process.Sink) Result {
	if !exists(s.Keystore) {
		return failed(s.Name(), sink, missing("keystore", s.Keystore))
	}
	if !exists(s.Package) {
		return failed(s.Name(), sink, missing("package", s.Package))
	}

	var argv []string
	if s.Java != "" {
		argv = append(argv, s.Java, "-jar")
	}
	argv = append(argv, s.Tool, "sign",
		"--ks", s.Keystore,
		"--ks-pass", "pass:"+s.Password,
		"--key-pass", "pass:"+s.Password,
		"--ks-key-alias", s.Alias,
		s.Package,
	)
	return invoke(ctx, s.Runner, s.Name(), process.Command{Argv: argv, Secrets: []string{s.Password}}, sink)
}
