package nats

import (
	"graphsync/internal/core"

	"github.com/zhulik/pal"
)

func Provide() pal.ServiceDef {
	return pal.ProvideList(
		pal.Provide(&NATS{}),
		pal.Provide[core.DocumentStore](&DocStore{}),
	)
}
