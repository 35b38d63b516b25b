package app

import (
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/logger"
	"github.com/courseforge/courseforge-backend/internal/repos"
)

type Repos struct {
	Course           repos.CourseRepo
	StageTask        repos.StageTaskRepo
	RepoFile         repos.RepoFileRepo
	DocumentAnalysis repos.DocumentAnalysisRepo
	Pathway          repos.PathwayRepo
	PathwayModule    repos.PathwayModuleRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Course:           repos.NewCourseRepo(db, log),
		StageTask:        repos.NewStageTaskRepo(db, log),
		RepoFile:         repos.NewRepoFileRepo(db, log),
		DocumentAnalysis: repos.NewDocumentAnalysisRepo(db, log),
		Pathway:          repos.NewPathwayRepo(db, log),
		PathwayModule:    repos.NewPathwayModuleRepo(db, log),
	}
}
