package endpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

// ecrAPI is the subset of *ecr.Client ImageCheck needs.
type ecrAPI interface {
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

// ImageCheck is an ecr-backed ImagePreflightChecker: before Create submits,
// it resolves the custom inference image tag via DescribeImages so a
// missing image surfaces as an endpoint_error before the (slower) control
// plane's own failure.
type ImageCheck struct {
	client         ecrAPI
	registryID     string
	repositoryName string
}

// NewImageCheck returns an ImageCheck against repositoryName in the AWS
// account identified by registryID (empty uses the caller's default
// account).
func NewImageCheck(client *ecr.Client, registryID, repositoryName string) *ImageCheck {
	return &ImageCheck{client: client, registryID: registryID, repositoryName: repositoryName}
}

// CheckImage resolves imageTag (an image tag, e.g. "v1.2.3") against the
// configured repository. Returns an error if the tag does not exist.
func (c *ImageCheck) CheckImage(ctx context.Context, imageTag string) error {
	input := &ecr.DescribeImagesInput{
		RepositoryName: &c.repositoryName,
		ImageIds: []types.ImageIdentifier{
			{ImageTag: &imageTag},
		},
	}
	if c.registryID != "" {
		input.RegistryId = &c.registryID
	}

	out, err := c.client.DescribeImages(ctx, input)
	if err != nil {
		if isImageNotFound(err) {
			return fmt.Errorf("image %s:%s not found in %s", c.repositoryName, imageTag, c.repositoryName)
		}
		return fmt.Errorf("describe image %s:%s: %w", c.repositoryName, imageTag, err)
	}
	if len(out.ImageDetails) == 0 {
		return fmt.Errorf("image %s:%s not found", c.repositoryName, imageTag)
	}
	return nil
}

func isImageNotFound(err error) bool {
	var nf *types.ImageNotFoundException
	return errors.As(err, &nf)
}
