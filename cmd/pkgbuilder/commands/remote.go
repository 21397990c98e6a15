package commands

import (
	"os"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
)

// RemoteCmd implements the 'remote' command, a shorthand for 'build --remote'.
type RemoteCmd struct {
	Path string `arg:"" optional:"" help:"Project directory (defaults to project.path)"`
}

func (r *RemoteCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	return RunBuild(cfg, projectPath(r.Path, cfg), config.StrategyRemote, os.Stdout)
}
