package domain

import (
	"github.com/aulalink/aulalink-backend/internal/domain/grading"
)

type (
	User       = grading.User
	Assignment = grading.Assignment
	Submission = grading.Submission
	Artifact   = grading.Artifact
)

var (
	EncodeArtifacts = grading.EncodeArtifacts
	DecodeArtifacts = grading.DecodeArtifacts
)
