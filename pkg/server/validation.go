package server

import "fmt"

func validateSetManifestDirRequest(req *SetManifestDirRequest) error {
	if req.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	return nil
}

func validateReadRangeRequest(req *ReadRangeRequest) error {
	if req.Start < 1 {
		return fmt.Errorf("start must be >= 1")
	}
	if req.End < req.Start {
		return fmt.Errorf("end must be >= start")
	}
	return nil
}

func validateSearchAllRequest(req *SearchAllRequest) error {
	if req.Q == "" {
		return fmt.Errorf("q is required")
	}
	return nil
}

func validateMergeStartRequest(req *MergeStartRequest) error {
	if req.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if req.OutDir == "" {
		return fmt.Errorf("outDir is required")
	}
	return nil
}
