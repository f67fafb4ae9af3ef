package main

import (
	"context"

	"github.com/pkg/errors"
)

type versionClient interface {
	GetProjectID(ctx context.Context, projectKey string) (int, bool, error)
	GetVersion(ctx context.Context, projectID int, name string) (Version, error)
	AddVersion(ctx context.Context, projectID int, name string) (Version, error)
	DeleteVersion(ctx context.Context, version Version) error
	ReleaseVersion(ctx context.Context, version Version) (Version, error)
}

// Action is what a run ended up doing to the version.
type Action string

const (
	ActionNone     Action = "none"
	ActionCreated  Action = "created"
	ActionReleased Action = "released"
	ActionDeleted  Action = "deleted"
)

var errProjectNotFound = errors.New("Project does not exist")

// Release drives one version through create, release or delete.
type Release struct {
	client versionClient
	log    Logger

	ProjectKey string
	Version    string
	Release    bool
	Delete     bool
}

// Result is the outcome of Run. Version is the last known state of the
// version on the server and is nil when there is none.
type Result struct {
	ProjectID int
	Version   Version
	Actions   []Action
}

func NewRelease(client versionClient, opts *Options, log Logger) *Release {
	if log == nil {
		log = discardLogger{}
	}

	return &Release{
		client:     client,
		log:        log,
		ProjectKey: opts.ProjectKey,
		Version:    opts.Version,
		Release:    opts.Release,
		Delete:     opts.Delete,
	}
}

func (r *Release) Run(ctx context.Context) (*Result, error) {
	projectID, ok, err := r.client.GetProjectID(ctx, r.ProjectKey)
	if err != nil {
		return nil, err
	}
	if !ok || projectID == 0 {
		return nil, errors.Wrap(errProjectNotFound, r.ProjectKey)
	}

	result := &Result{ProjectID: projectID}

	version, err := r.client.GetVersion(ctx, projectID, r.Version)
	if err != nil {
		return nil, err
	}
	if version == nil {
		r.log.Info("Version does not exist")
	}

	if r.Delete {
		if version != nil {
			r.log.Info("Deleting version")
			if err := r.client.DeleteVersion(ctx, version); err != nil {
				return nil, err
			}
			result.Version = version
			result.Actions = append(result.Actions, ActionDeleted)
		}
		return result, nil
	}

	if version == nil {
		r.log.Info("Creating version")
		version, err = r.client.AddVersion(ctx, projectID, r.Version)
		if err != nil {
			return nil, err
		}
		if version == nil {
			if r.Release {
				r.log.Info("Version was created concurrently, nothing to release")
			} else {
				r.log.Info("Version was created concurrently")
			}
			return result, nil
		}
		result.Actions = append(result.Actions, ActionCreated)
	} else {
		r.log.Info("Version already exists")
	}
	result.Version = version

	if !r.Release {
		return result, nil
	}

	r.log.Info("Releasing version")
	if version.Released() {
		r.log.Info("Version already released")
		return result, nil
	}

	released, err := r.client.ReleaseVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	result.Version = released
	result.Actions = append(result.Actions, ActionReleased)

	return result, nil
}
