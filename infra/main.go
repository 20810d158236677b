package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/statementdesk/ledgerlink/infra/cloudrun"
	"github.com/statementdesk/ledgerlink/infra/docker"
	"github.com/statementdesk/ledgerlink/infra/firestore"
	"github.com/statementdesk/ledgerlink/infra/identity"
	"github.com/statementdesk/ledgerlink/infra/kms"
	"github.com/statementdesk/ledgerlink/infra/provider"
	"github.com/statementdesk/ledgerlink/infra/vertex"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		// set default provider with the correct project
		prov, err := provider.SetupDefaultProvider(ctx)
		if err != nil {
			return err
		}

		// enable identity service to allow using firebase
		err = identity.SetupIdentity(ctx, prov)
		if err != nil {
			return err
		}

		// enable firestore and create a database for the project
		err = firestore.SetupFirestore(ctx, prov)
		if err != nil {
			return err
		}

		// kms key ring + key encrypting stored OAuth tokens
		kmsSvc, err := kms.SetupKMS(ctx, prov)
		if err != nil {
			return err
		}
		tokenKey, err := kms.CreateKey(ctx, prov, "ledgerlink", "connection-tokens")
		if err != nil {
			return err
		}

		// enable vertex for mapping suggestions
		err = vertex.SetupVertex(ctx, prov)
		if err != nil {
			return err
		}

		// create docker repo
		repo, err := docker.CreateCloudrunRepo(ctx)
		if err != nil {
			return err
		}

		_, err = cloudrun.SetupCloudRun(ctx, prov, tokenKey, repo, kmsSvc)
		if err != nil {
			return err
		}

		return nil
	})
}
