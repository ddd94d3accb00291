package core

func WithGuildOnly() Middleware {
	return func(cmd Command) Command {
		return &wrappedCommand{
			Command: cmd,
			wrap: func(ctx interface{}) error {
				if v, ok := ctx.(*SlashInteractionContext); ok && v.Event.GuildID == "" {
					return RespondEphemeral(v.Session, v.Event, "This command only works in a server.")
				}
				return cmd.Run(ctx)
			},
		}
	}
}
