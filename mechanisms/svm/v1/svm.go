package v1

import (
	x402 "github.com/x402-foundation/paypanel"
	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
)

// RegisterClient registers the V1 SVM client with an X402Client under the
// v1 names of the given networks, or of the token's network when none are given
func RegisterClient(client *x402.X402Client, scheme *ExactSvmClientV1, networks ...string) *x402.X402Client {
	if len(networks) == 0 {
		networks = []string{scheme.token.Network}
	}

	for _, network := range networks {
		config, err := svm.GetNetworkConfig(network)
		if err != nil {
			continue
		}
		client.RegisterSchemeV1(x402.Network(config.V1Name), scheme)
	}

	return client
}
