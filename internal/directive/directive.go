package directive

import (
	"slices"

	"kcgate/internal/model"
)

// Build resolves the target and formats the proxy of c into a ForwardDirective.
// host is the inbound Host header.
func Build(c Controls, host string) (model.ForwardDirective, error) {
	d := model.ForwardDirective{
		TargetURL:    ResolveTarget(c.URL, host, c.Protocol),
		ProtocolHint: c.Protocol,
		HeaderOrder:  slices.Clone(c.HeaderOrder),
		Delay:        c.Delay,
	}

	if c.Proxy != "" {
		p, err := FormatProxy(c.Proxy)
		if err != nil {
			return model.ForwardDirective{}, err
		}
		d.Proxy = p
	}

	return d, nil
}
